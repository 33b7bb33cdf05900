package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/mockapi"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
	"github.com/Dompi123/FOMO2025PART4/internal/store"
	syncengine "github.com/Dompi123/FOMO2025PART4/internal/sync"
	"github.com/Dompi123/FOMO2025PART4/internal/uuid"
)

func newQueueCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queue",
		GroupID: "sync",
		Short:   "Queue a mutation for the next sync",
		Long: `Queue an order or profile mutation in the local store.

The operation is validated, sanitized and persisted; it is sent to the
service by the next 'fomosync sync' or by a running 'fomosync run'.`,
	}
	cmd.AddCommand(newQueueOrderCmd(opts), newQueueProfileCmd(opts))
	return cmd
}

func newQueueOrderCmd(opts *rootOptions) *cobra.Command {
	var (
		opType  string
		id      string
		orderID string
		venueID string
		items   []string
		notes   string
	)

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Queue an order create, update or cancel",
		Example: `  fomosync queue order --venue v1 --item mojito:2 --item nachos
  fomosync queue order --type delete --order-id 0192f3c4-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseItems(items, notes)
			if err != nil {
				return err
			}
			req := syncengine.OperationRequest{
				ID:     id,
				Type:   models.OperationType(opType),
				Entity: models.EntityOrder,
				Data:   &models.OrderData{OrderID: orderID, VenueID: venueID, Items: parsed},
			}
			return queue(cmd, opts, req)
		},
	}
	cmd.Flags().StringVar(&opType, "type", string(models.OpCreate), "create, update or delete")
	cmd.Flags().StringVar(&id, "id", "", "operation id as a UUID (generated when empty)")
	cmd.Flags().StringVar(&orderID, "order-id", "", "server order id (update and delete)")
	cmd.Flags().StringVar(&venueID, "venue", "", "venue id")
	cmd.Flags().StringArrayVar(&items, "item", nil, "menu item as id[:quantity], repeatable")
	cmd.Flags().StringVar(&notes, "notes", "", "notes attached to every item")
	return cmd
}

func newQueueProfileCmd(opts *rootOptions) *cobra.Command {
	var (
		opType     string
		id         string
		name       string
		email      string
		phone      string
		prefs      map[string]string
		resolution string
	)

	cmd := &cobra.Command{
		Use:     "profile",
		Short:   "Queue a profile update or delete",
		Example: `  fomosync queue profile --name "Ana" --pref theme=dark --resolution client`,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := &models.ProfilePatch{}
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("email") {
				patch.Email = &email
			}
			if flags.Changed("phone") {
				patch.Phone = &phone
			}
			if len(prefs) > 0 {
				patch.Preferences = make(map[string]interface{}, len(prefs))
				for k, v := range prefs {
					patch.Preferences[k] = v
				}
			}
			if models.OperationType(opType) != models.OpDelete && patch.IsEmpty() {
				return apperrors.New(apperrors.ErrInvalid, "nothing to update: set --name, --email, --phone or --pref")
			}

			req := syncengine.OperationRequest{
				ID:                 id,
				Type:               models.OperationType(opType),
				Entity:             models.EntityProfile,
				Data:               patch,
				ConflictResolution: models.ConflictResolution(resolution),
			}
			return queue(cmd, opts, req)
		},
	}
	cmd.Flags().StringVar(&opType, "type", string(models.OpUpdate), "update or delete")
	cmd.Flags().StringVar(&id, "id", "", "operation id as a UUID (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringToStringVar(&prefs, "pref", nil, "preference as key=value, repeatable")
	cmd.Flags().StringVar(&resolution, "resolution", "", "conflict resolution: server or client")
	return cmd
}

func parseItems(flags []string, notes string) ([]models.OrderItemData, error) {
	items := make([]models.OrderItemData, 0, len(flags))
	for _, raw := range flags {
		itemID, qty, hasQty := strings.Cut(raw, ":")
		quantity := 1
		if hasQty {
			n, err := strconv.Atoi(qty)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInvalid, fmt.Sprintf("invalid quantity in %q", raw), err)
			}
			quantity = n
		}
		items = append(items, models.OrderItemData{ID: itemID, Quantity: quantity, Notes: notes})
	}
	return items, nil
}

func queue(cmd *cobra.Command, opts *rootOptions, req syncengine.OperationRequest) error {
	if req.ID != "" {
		if err := uuid.Validate(req.ID); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "--id must be a UUID", err)
		}
	}

	ctx := cmd.Context()
	a := newApp(opts.cfg)
	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.close()

	op, err := a.engine.QueueOperation(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s %s operation %s (pending: %d)\n",
		op.Type, op.Entity, op.ID, a.engine.State().PendingOperations)
	return nil
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:     "sync",
		GroupID: "sync",
		Short:   "Push queued operations to the service once",
		Long: `Probe the service and, when it is reachable, run one sync sweep over
the queued operations followed by a refresh of cached venues and profile.

Operations that fail transiently stay queued with their retry count
incremented; run the command again or use 'fomosync run'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a := newApp(opts.cfg)
			if err := a.start(ctx); err != nil {
				return err
			}
			defer a.close()

			if !a.monitor.CheckNow(ctx).IsOnline {
				fmt.Fprintf(out, "Service unreachable at %s; %d operation(s) remain queued\n",
					opts.cfg.API.BaseURL, a.engine.State().PendingOperations)
				return nil
			}

			// Coming online starts a sweep in the background. Sync reports
			// in-progress until it is done, then sweeps whatever is left.
			start := time.Now()
			var result *syncengine.SyncResult
			for {
				res, err := a.engine.Sync(ctx)
				if err != nil {
					return err
				}
				if !res.Skipped || res.Reason != syncengine.ReasonInProgress {
					result = res
					break
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(50 * time.Millisecond):
				}
			}

			if refresh {
				if err := a.engine.Refresh(ctx); err != nil {
					fmt.Fprintf(out, "Refresh incomplete: %s\n", apperrors.UserMessage(err))
				}
			}

			state := a.engine.State()
			if !result.Skipped {
				fmt.Fprintf(out, "Sweep: %d processed, %d synced, %d retried, %d dropped, %d conflicts\n",
					result.Processed, result.Succeeded, result.Retried, result.Dropped, result.Conflicts)
			}
			fmt.Fprintf(out, "Sync finished in %v; %d operation(s) pending\n",
				time.Since(start).Round(time.Millisecond), state.PendingOperations)
			printErrors(out, state.Errors)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", true, "refresh cached venues and profile after the sweep")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: "sync",
		Short:   "Show queued operations and cached data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			a := newApp(opts.cfg)
			if err := a.start(ctx); err != nil {
				return err
			}
			defer a.close()

			st := a.manager.Store()
			fmt.Fprintf(out, "Store: %s", opts.cfg.Store.Path)
			if a.manager.Degraded() {
				fmt.Fprint(out, " (unavailable, memory-only)")
			}
			fmt.Fprintln(out)

			if check {
				online := "offline"
				if a.monitor.CheckNow(ctx).IsOnline {
					online = "online"
				}
				fmt.Fprintf(out, "Service: %s (%s)\n", opts.cfg.API.BaseURL, online)
			}

			ops, err := a.manager.PendingOperations(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pending: %d\n", len(ops))
			for i, op := range ops {
				fmt.Fprintf(out, "  %d. %s %s %s retries=%d version=%d queued=%s\n",
					i+1, op.ID, op.Type, op.Entity, op.RetryCount, op.Version,
					time.UnixMilli(op.Timestamp).Format(time.RFC3339))
			}

			venues, err := store.Venues(ctx, st)
			if err != nil {
				return err
			}
			orders, err := store.Orders(ctx, st)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Cached: %d venue(s), %d order(s)\n", len(venues), len(orders))

			profile, err := store.Profile(ctx, st)
			if err != nil {
				return err
			}
			if profile != nil {
				fmt.Fprintf(out, "Profile: %s <%s> version=%d\n", profile.Name, profile.Email, profile.Version)
			}

			conflicts, err := a.manager.Conflicts(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Conflicts: %d\n", len(conflicts))
			for _, c := range conflicts {
				fmt.Fprintf(out, "  %s %s local=%d server=%d %s\n",
					c.Entity, c.EntityID, c.LocalVersion, c.ServerVersion, c.Resolution)
			}

			printErrors(out, a.engine.State().Errors)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "probe the service before reporting")
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "run",
		GroupID: "sync",
		Short:   "Run the sync loop until interrupted",
		Long: `Run the sync core in the foreground: probe connectivity periodically,
sweep the queue whenever the service becomes reachable and on every sync
interval, and refresh cached data after each sweep.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := newApp(opts.cfg)
			if err := a.start(ctx); err != nil {
				return err
			}
			defer a.close()

			var last models.SyncState
			unsubscribe := a.engine.Subscribe(func(s models.SyncState) {
				if s.IsOnline != last.IsOnline || s.IsSyncing != last.IsSyncing ||
					s.PendingOperations != last.PendingOperations {
					logging.Info("Sync state", map[string]interface{}{
						"online":  s.IsOnline,
						"syncing": s.IsSyncing,
						"pending": s.PendingOperations,
					})
				}
				last = s
			})
			defer unsubscribe()

			a.monitor.CheckNow(ctx)
			a.monitor.Start(ctx)

			fmt.Fprintf(cmd.OutOrStdout(), "Syncing against %s every %v; press Ctrl+C to stop\n",
				opts.cfg.API.BaseURL, opts.cfg.Sync.Interval)
			<-ctx.Done()
			return nil
		},
	}
}

func newServeMockCmd(opts *rootOptions) *cobra.Command {
	var (
		addr    string
		token   string
		latency time.Duration
	)

	cmd := &cobra.Command{
		Use:     "serve-mock",
		GroupID: "dev",
		Short:   "Serve a mock of the venue and ordering service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !cmd.Flags().Changed("token") {
				token = opts.cfg.API.Token
			}
			api := mockapi.New(
				mockapi.WithToken(token),
				mockapi.WithLatency(latency),
				mockapi.WithVenues(sampleVenues()...),
			)
			return serve(ctx, cmd.OutOrStdout(), addr, api)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&token, "token", "", "required bearer token (defaults to api.token)")
	cmd.Flags().DurationVar(&latency, "latency", 0, "delay added to every response")
	return cmd
}

func serve(ctx context.Context, out io.Writer, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(out, "Mock service listening on http://%s\n", addr)
	logging.Info("Mock service started", map[string]interface{}{"addr": addr})

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logging.Info("Mock service stopped", nil)
	return nil
}

func sampleVenues() []models.Venue {
	return []models.Venue{
		{ID: "v1", Name: "The Rooftop", Category: "bar", Address: "1 High St", Latitude: 40.7128, Longitude: -74.006, Status: "open", WaitTime: 10},
		{ID: "v2", Name: "Basement Club", Category: "club", Address: "22 Low Rd", Latitude: 40.7138, Longitude: -74.001, Status: "busy", WaitTime: 35},
		{ID: "v3", Name: "Corner Lounge", Category: "lounge", Address: "3 Side Ave", Latitude: 40.7101, Longitude: -74.009, Status: "open"},
	}
}

func printErrors(out io.Writer, errs []models.SyncError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(out, "Errors: %d\n", len(errs))
	for _, e := range errs {
		line := fmt.Sprintf("  [%s] %s", e.Code, e.Message)
		if e.OperationID != "" {
			line += " (operation " + e.OperationID + ")"
		}
		fmt.Fprintln(out, line)
	}
}
