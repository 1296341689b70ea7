// Package naming holds the identifier conventions shared by the query
// compiler and the result reassembler.
package naming

import (
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Convention represents the naming convention for generated attribute names.
type Convention int

const (
	// CamelCase convention: "userId", "createdAt"
	CamelCase Convention = 0
	// SnakeCase convention: "user_id", "created_at"
	SnakeCase Convention = 1
)

const (
	columnSeparator = "_"
	nestedSeparator = "__"
	junctionSuffix  = "_through"
)

var lower = cases.Lower(language.Und)

// DefaultTableName is the table an entity maps to when none is given.
func DefaultTableName(entity string) string {
	return lower.String(entity)
}

// ColumnAlias is the select-list alias of field as owned by alias. Both the
// query compiler and the reassembler go through this pair of functions.
func ColumnAlias(alias, field string) string {
	return alias + columnSeparator + field
}

// ParseColumnAlias inverts ColumnAlias against a known set of aliases. The
// longest matching alias wins, so "user" never claims "user_orders_id" when
// "user_orders" is also known.
func ParseColumnAlias(column string, aliases []string) (alias, field string, ok bool) {
	for _, candidate := range aliases {
		f, matched := FieldOf(column, candidate)
		if !matched {
			continue
		}
		if len(candidate) > len(alias) {
			alias = candidate
			field = f
			ok = true
		}
	}
	return alias, field, ok
}

// FieldOf strips alias from column, reporting false when column is not owned by alias.
func FieldOf(column, alias string) (string, bool) {
	prefix := alias + columnSeparator
	if !strings.HasPrefix(column, prefix) || len(column) == len(prefix) {
		return "", false
	}
	return column[len(prefix):], true
}

// JunctionAlias names the junction table joined for a many-to-many include.
func JunctionAlias(alias string) string {
	return alias + junctionSuffix
}

// NestedAlias names an include that hangs off another include.
func NestedAlias(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + nestedSeparator + child
}

// Quote wraps an identifier in backticks.
func Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "\\`") + "`"
}

// Column renders a column reference, qualified when alias is set.
func Column(alias, field string) string {
	if alias == "" {
		return Quote(field)
	}
	return Quote(alias) + "." + Quote(field)
}

// SingularAlias is the default alias for owns-one and owned-by associations.
func SingularAlias(target string) string {
	return lowerFirst(target)
}

// PluralAlias is the default alias for has-many and many-to-many associations.
func PluralAlias(target string) string {
	return inflect.Pluralize(lowerFirst(target))
}

// ForeignKey builds the default foreign key attribute for a related name.
func ForeignKey(related string, convention Convention) string {
	base := lowerFirst(related)
	if convention == SnakeCase {
		return ToSnakeCase(base) + "_id"
	}
	return base + "Id"
}

// ConvertAttrName converts a name to the given convention.
func ConvertAttrName(name string, convention Convention) string {
	if convention == SnakeCase {
		return ToSnakeCase(name)
	}
	return lowerFirst(name)
}

// ToSnakeCase converts a camel-case name to snake_case with acronym handling:
// "URLValue" becomes "url_value" and "UserID" becomes "user_id".
func ToSnakeCase(name string) string {
	if name == "" {
		return ""
	}

	runes := []rune(name)
	if len(runes) == 1 {
		return strings.ToLower(name)
	}

	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	for i, ch := range runes {
		if unicode.IsUpper(ch) {
			if i > 0 {
				prev := runes[i-1]
				nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if !unicode.IsDigit(prev) && prev != '_' && (unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextIsLower)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(ch))
			continue
		}
		b.WriteRune(ch)
	}

	return b.String()
}

func lowerFirst(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	boundary := 1
	// Leading acronyms lower as a block: "URLRule" -> "urlRule".
	for boundary < len(runes) && unicode.IsUpper(runes[boundary]) {
		if boundary+1 < len(runes) && !unicode.IsUpper(runes[boundary+1]) {
			break
		}
		boundary++
	}
	return strings.ToLower(string(runes[:boundary])) + string(runes[boundary:])
}
