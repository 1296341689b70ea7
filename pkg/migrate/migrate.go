// Package migrate applies versioned SQL scripts to the warehouse and keeps a
// ledger of what has been applied.
//
// Scripts are named <version>_<name>.up.sql with an optional matching
// .down.sql. Versions sort numerically when every version is an integer and
// lexically otherwise.
package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrChecksumMismatch means an applied script was edited after it ran.
	ErrChecksumMismatch = errors.New("migration changed after it was applied")
	// ErrMissingDown means a rollback was requested for a script without a down file.
	ErrMissingDown = errors.New("migration has no down script")
	// ErrUnknownApplied means the ledger records a version no source provides.
	ErrUnknownApplied = errors.New("applied migration not found in source")
	// ErrInvalidName means a file in the source does not follow the naming scheme.
	ErrInvalidName = errors.New("invalid migration file name")
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Migration is one versioned script pair.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// ID is the file stem shared by the up and down scripts.
func (m Migration) ID() string {
	return m.Version + "_" + m.Name
}

// Checksum is the hex SHA-256 of the up script.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

// Record is one ledger entry.
type Record struct {
	AppliedAt time.Time
	Version   string
	Name      string
	Checksum  string
}

// parseFileName splits "0001_create_users.up.sql" into version, name and direction.
func parseFileName(file string) (version, name string, up bool, err error) {
	base := path.Base(file)
	switch {
	case strings.HasSuffix(base, upSuffix):
		base, up = strings.TrimSuffix(base, upSuffix), true
	case strings.HasSuffix(base, downSuffix):
		base = strings.TrimSuffix(base, downSuffix)
	default:
		return "", "", false, fmt.Errorf("%w: %s", ErrInvalidName, file)
	}
	version, name, ok := strings.Cut(base, "_")
	if !ok || version == "" || name == "" || strings.Trim(version, "0123456789") != "" {
		return "", "", false, fmt.Errorf("%w: %s", ErrInvalidName, file)
	}
	return version, name, up, nil
}

// isScript reports whether file looks like a migration script at all.
func isScript(file string) bool {
	return strings.HasSuffix(file, upSuffix) || strings.HasSuffix(file, downSuffix)
}

// assemble pairs script contents keyed by file name into sorted migrations.
func assemble(files map[string]string) ([]Migration, error) {
	byVersion := make(map[string]*Migration)
	for file, body := range files {
		version, name, up, err := parseFileName(file)
		if err != nil {
			return nil, err
		}
		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("%w: version %s used by %s and %s", ErrInvalidName, version, m.Name, name)
		}
		if up {
			m.Up = body
		} else {
			m.Down = body
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("%w: %s has no up script", ErrInvalidName, m.ID())
		}
		out = append(out, *m)
	}
	sortByVersion(out, func(m Migration) string { return m.Version })
	return out, nil
}

func sortByVersion[T any](items []T, version func(T) string) {
	numeric := true
	for _, it := range items {
		if _, err := strconv.ParseUint(version(it), 10, 64); err != nil {
			numeric = false
			break
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := version(items[i]), version(items[j])
		if numeric {
			x, _ := strconv.ParseUint(a, 10, 64)
			y, _ := strconv.ParseUint(b, 10, 64)
			return x < y
		}
		return a < b
	})
}

// SplitStatements breaks a script on semicolons outside quotes and comments.
// Empty statements are dropped.
func SplitStatements(script string) []string {
	var (
		out     []string
		current strings.Builder
		quote   rune
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			current.WriteRune(r)
			if r == '\\' && i+1 < len(runes) {
				i++
				current.WriteRune(runes[i])
				continue
			}
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
			current.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
		case r == ';':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out
}
