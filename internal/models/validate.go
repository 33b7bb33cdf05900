package models

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that the operation is structurally well formed. It detects
// malformed queue state only; it does not apply business rules.
func (op *SyncOperation) Validate() error {
	if op == nil {
		return apperrors.New(apperrors.ErrInvalid, "nil operation")
	}
	if strings.TrimSpace(op.ID) == "" {
		return apperrors.New(apperrors.ErrInvalid, "operation id is empty")
	}
	if !op.Type.Valid() {
		return apperrors.NewInvalidOperationType(string(op.Type))
	}
	if !op.Entity.Valid() {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity %q", op.Entity))
	}
	if !op.hasPayload() {
		return apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("payload does not match entity %q", op.Entity))
	}
	if op.RetryCount < 0 {
		return apperrors.New(apperrors.ErrInvalid, "negative retry count")
	}
	if op.ConflictResolution != ResolutionDefault &&
		op.ConflictResolution != ResolutionServer &&
		op.ConflictResolution != ResolutionClient {
		return apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("unknown conflict resolution %q", op.ConflictResolution))
	}
	if op.ConflictResolution == ResolutionClient && op.Entity != EntityProfile {
		return apperrors.New(apperrors.ErrInvalid, "client-wins resolution is only allowed for profile")
	}

	if d, ok := op.OrderData(); ok {
		return d.Validate(op.Type)
	}
	return nil
}

// hasPayload reports whether Data is a non-nil payload of the operation's
// entity. A typed nil pointer does not count.
func (op *SyncOperation) hasPayload() bool {
	switch op.Entity {
	case EntityOrder:
		_, ok := op.OrderData()
		return ok
	case EntityProfile:
		_, ok := op.ProfilePatch()
		return ok
	}
	return false
}

// Validate checks the order payload for the given operation type.
func (d *OrderData) Validate(opType OperationType) error {
	v := validatorInstance()

	if opType == OpDelete {
		if err := v.Var(d.OrderID, "required"); err != nil {
			return fieldError(map[string][]string{"orderId": {"is required"}})
		}
		return nil
	}

	fields := make(map[string][]string)
	if opType == OpUpdate && strings.TrimSpace(d.OrderID) == "" {
		fields["orderId"] = append(fields["orderId"], "is required")
	}
	if err := v.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return apperrors.Wrap(apperrors.ErrInvalid, "order payload", err)
		}
		for _, fe := range verrs {
			name := jsonFieldName(fe)
			fields[name] = append(fields[name], describe(fe))
		}
	}
	if len(fields) > 0 {
		return fieldError(fields)
	}
	return nil
}

func fieldError(fields map[string][]string) error {
	return apperrors.NewValidation("malformed order payload", 0, fields)
}

// jsonFieldName turns a namespace like "OrderData.Items[0].ID" into "items[0].id".
func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	parts := strings.Split(ns, ".")
	for i, p := range parts {
		parts[i] = lowerFirst(p)
	}
	return strings.Join(parts, ".")
}

func lowerFirst(s string) string {
	switch {
	case s == "ID":
		return "id"
	case strings.HasPrefix(s, "VenueID"):
		return "venueId" + strings.TrimPrefix(s, "VenueID")
	case s == "":
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must contain at least " + fe.Param() + " entry"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
