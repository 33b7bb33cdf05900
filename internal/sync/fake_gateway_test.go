package sync

import (
	"context"
	"fmt"
	gosync "sync"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// fakeGateway is an in-process Gateway. Mutating calls are recorded in
// order as "<kind>:<key>"; fail, when set, decides their outcome.
type fakeGateway struct {
	mu       gosync.Mutex
	calls    []string
	versions []int64
	reads    []string
	profile  models.Profile
	venues   []models.Venue
	orderSeq int
	fail     func(call string) error
	readErr  error
	gate     chan struct{}
	entered  chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		profile: models.Profile{ID: "u1", Name: "Server", Email: "server@example.com", Version: 1},
		venues:  []models.Venue{{ID: "v1", Name: "Rooftop", Version: 1}},
		entered: make(chan struct{}, 64),
	}
}

func (g *fakeGateway) setFail(fn func(call string) error) {
	g.mu.Lock()
	g.fail = fn
	g.mu.Unlock()
}

func (g *fakeGateway) setGate(ch chan struct{}) {
	g.mu.Lock()
	g.gate = ch
	g.mu.Unlock()
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) Versions() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.versions...)
}

func (g *fakeGateway) Reads() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.reads...)
}

func (g *fakeGateway) mutate(ctx context.Context, call string, version int64) error {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.versions = append(g.versions, version)
	fail, gate := g.fail, g.gate
	g.mu.Unlock()

	select {
	case g.entered <- struct{}{}:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return apperrors.NewNetwork("request timed out", 0, ctx.Err())
		}
	}
	if fail != nil {
		return fail(call)
	}
	return nil
}

func (g *fakeGateway) CreateOrder(ctx context.Context, data *models.OrderData, version int64) (*models.Order, error) {
	if err := g.mutate(ctx, "create:"+data.VenueID, version); err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.orderSeq++
	id := fmt.Sprintf("srv-%d", g.orderSeq)
	g.mu.Unlock()

	items := make([]models.OrderItem, len(data.Items))
	for i, it := range data.Items {
		items[i] = models.OrderItem{ID: it.ID, Quantity: it.Quantity, Notes: it.Notes}
	}
	return &models.Order{ID: id, VenueID: data.VenueID, Items: items, Status: models.OrderPending, Version: 1}, nil
}

func (g *fakeGateway) UpdateOrder(ctx context.Context, data *models.OrderData, version int64) (*models.Order, error) {
	if err := g.mutate(ctx, "update:"+data.OrderID, version); err != nil {
		return nil, err
	}
	return &models.Order{ID: data.OrderID, VenueID: data.VenueID, Status: models.OrderPending, Version: version + 1}, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID string, version int64) (*models.Order, error) {
	if err := g.mutate(ctx, "cancel:"+orderID, version); err != nil {
		return nil, err
	}
	return &models.Order{ID: orderID, Status: models.OrderCancelled, Version: version + 1}, nil
}

func (g *fakeGateway) UpdateProfile(ctx context.Context, patch *models.ProfilePatch, version int64) (*models.Profile, error) {
	if err := g.mutate(ctx, "profile:update", version); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profile = g.profile.Apply(patch)
	g.profile.Version++
	p := g.profile.Apply(nil)
	return &p, nil
}

func (g *fakeGateway) DeleteProfile(ctx context.Context, version int64) error {
	return g.mutate(ctx, "profile:delete", version)
}

func (g *fakeGateway) ForceSyncOperation(ctx context.Context, op *models.SyncOperation) (*models.Profile, error) {
	if err := g.mutate(ctx, "profile:force", op.Version); err != nil {
		return nil, err
	}
	patch, _ := op.ProfilePatch()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profile = g.profile.Apply(patch)
	g.profile.Version++
	p := g.profile.Apply(nil)
	return &p, nil
}

func (g *fakeGateway) GetVenues(ctx context.Context) ([]models.Venue, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads = append(g.reads, "venues")
	if g.readErr != nil {
		return nil, g.readErr
	}
	return append([]models.Venue(nil), g.venues...), nil
}

func (g *fakeGateway) GetProfile(ctx context.Context) (*models.Profile, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads = append(g.reads, "profile")
	if g.readErr != nil {
		return nil, g.readErr
	}
	p := g.profile.Apply(nil)
	return &p, nil
}
