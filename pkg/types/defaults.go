package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Sentinel is a default value resolved at write time rather than declared literally.
type Sentinel string

const (
	// DefaultNow resolves to the moment the write call was made.
	DefaultNow Sentinel = "NOW"
	// DefaultUUID resolves to a fresh random UUID per record.
	DefaultUUID Sentinel = "UUIDV4"
	// DefaultULID resolves to a fresh lexically sortable id per record.
	DefaultULID Sentinel = "ULID"
)

// ParseSentinel recognizes the sentinel spellings used in definition files.
func ParseSentinel(v string) (Sentinel, bool) {
	switch v {
	case "NOW", "now", "CURRENT_TIMESTAMP":
		return DefaultNow, true
	case "UUIDV4", "uuidv4", "UUID", "uuid":
		return DefaultUUID, true
	case "ULID", "ulid":
		return DefaultULID, true
	}
	return "", false
}

// ResolveDefault returns the concrete default for one record. now is the time
// captured when the write call started; literals pass through unchanged.
func ResolveDefault(def any, now time.Time) any {
	s, ok := def.(Sentinel)
	if !ok {
		return def
	}
	switch s {
	case DefaultNow:
		return now
	case DefaultUUID:
		return uuid.NewString()
	case DefaultULID:
		return ulid.Make().String()
	}
	return def
}
