package columndb

import (
	"fmt"
	"time"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/reassemble"
	"github.com/theory-cloud/columntheory/pkg/types"
)

// prepare validates one record and fills defaults. now is captured once
// per write call so every NOW default in the call agrees.
func (m *Model) prepare(values map[string]any, now time.Time) (reassemble.Record, error) {
	e := m.entity
	rec := make(reassemble.Record, len(e.Attributes()))
	for name, v := range values {
		if !e.HasAttribute(name) {
			return nil, fmt.Errorf("%w: %s.%s", errors.ErrUnknownAttribute, e.Name, name)
		}
		rec[name] = v
	}

	for _, attr := range e.Attributes() {
		if v, ok := rec[attr.Name]; ok && v != nil {
			continue
		}
		if attr.Default != nil {
			rec[attr.Name] = types.ResolveDefault(attr.Default, now)
			continue
		}
		if !attr.AllowNull() {
			return nil, &errors.ValidationError{
				Err:       errors.ErrRequiredAttribute,
				Entity:    e.Name,
				Attribute: attr.Name,
				Reason:    "value required",
			}
		}
	}
	return rec, nil
}

// checkNulls rejects explicit NULLs for non-nullable attributes in an update.
func (m *Model) checkNulls(values map[string]any) error {
	for name, v := range values {
		if v != nil {
			continue
		}
		attr, ok := m.entity.Attribute(name)
		if ok && !attr.AllowNull() {
			return &errors.ValidationError{
				Err:       errors.ErrRequiredAttribute,
				Entity:    m.entity.Name,
				Attribute: name,
				Reason:    "cannot be set to null",
			}
		}
	}
	return nil
}

// keyString normalizes a primary key so values read back from the
// warehouse compare equal to the ones supplied by the caller.
func keyString(v any) string {
	switch k := v.(type) {
	case []byte:
		return string(k)
	case string:
		return k
	}
	return fmt.Sprint(v)
}
