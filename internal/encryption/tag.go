package encryption

import (
	"context"
	"fmt"

	customerrors "github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
)

// FailClosedIfEncryptedWithoutService rejects work on an entity with
// Encrypted attributes when no service is configured.
func FailClosedIfEncryptedWithoutService(svc *Service, e *model.Entity) error {
	if e == nil || len(e.EncryptedAttributes()) == 0 || svc != nil {
		return nil
	}
	return fmt.Errorf("%w: entity %s has encrypted attributes but no KMS key ARN is configured", customerrors.ErrEncryptionNotConfigured, e.Name)
}

// EncryptValues replaces every Encrypted attribute present in values with its
// envelope. NULL stays NULL.
func EncryptValues(ctx context.Context, svc *Service, e *model.Entity, values map[string]any) error {
	for _, name := range e.EncryptedAttributes() {
		v, ok := values[name]
		if !ok || v == nil {
			continue
		}
		if err := FailClosedIfEncryptedWithoutService(svc, e); err != nil {
			return err
		}
		sealed, err := svc.Encrypt(ctx, e.Name, name, v)
		if err != nil {
			return &customerrors.EncryptedFieldError{Operation: "encrypt", Field: name, Err: err}
		}
		values[name] = sealed
	}
	return nil
}

// DecryptValues opens every Encrypted attribute present in values.
func DecryptValues(ctx context.Context, svc *Service, e *model.Entity, values map[string]any) error {
	for _, name := range e.EncryptedAttributes() {
		v, ok := values[name]
		if !ok || v == nil {
			continue
		}
		if err := FailClosedIfEncryptedWithoutService(svc, e); err != nil {
			return err
		}
		plain, err := svc.Decrypt(ctx, e.Name, name, v)
		if err != nil {
			return &customerrors.EncryptedFieldError{Operation: "decrypt", Field: name, Err: err}
		}
		values[name] = plain
	}
	return nil
}
