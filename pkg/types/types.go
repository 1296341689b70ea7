// Package types maps declared attribute types to warehouse column schemas.
package types

import (
	"fmt"
	"strings"

	"github.com/theory-cloud/columntheory/pkg/errors"
)

// LogicalType is the declared type of an attribute.
type LogicalType string

// Supported logical types. Families collapse onto one physical type.
const (
	String    LogicalType = "STRING"
	Text      LogicalType = "TEXT"
	Char      LogicalType = "CHAR"
	UUID      LogicalType = "UUID"
	Integer   LogicalType = "INTEGER"
	BigInt    LogicalType = "BIGINT"
	SmallInt  LogicalType = "SMALLINT"
	TinyInt   LogicalType = "TINYINT"
	Float     LogicalType = "FLOAT"
	Double    LogicalType = "DOUBLE"
	Real      LogicalType = "REAL"
	Decimal   LogicalType = "DECIMAL"
	Numeric   LogicalType = "NUMERIC"
	Boolean   LogicalType = "BOOLEAN"
	Date      LogicalType = "DATE"
	DateTime  LogicalType = "DATETIME"
	Time      LogicalType = "TIME"
	Timestamp LogicalType = "TIMESTAMP"
	JSON      LogicalType = "JSON"
	Bytes     LogicalType = "BYTES"
	Geography LogicalType = "GEOGRAPHY"
	Struct    LogicalType = "STRUCT"
)

// Physical column types.
const (
	PhysicalString    = "STRING"
	PhysicalInt64     = "INT64"
	PhysicalFloat64   = "FLOAT64"
	PhysicalNumeric   = "NUMERIC"
	PhysicalBool      = "BOOL"
	PhysicalDate      = "DATE"
	PhysicalDateTime  = "DATETIME"
	PhysicalTime      = "TIME"
	PhysicalTimestamp = "TIMESTAMP"
	PhysicalJSON      = "JSON"
	PhysicalBytes     = "BYTES"
	PhysicalGeography = "GEOGRAPHY"
	PhysicalRecord    = "RECORD"
)

// Default fixed-point precision and scale when a numeric attribute omits them.
const (
	DefaultPrecision = 38
	DefaultScale     = 9
)

var physicalByLogical = map[LogicalType]string{
	String:    PhysicalString,
	Text:      PhysicalString,
	Char:      PhysicalString,
	UUID:      PhysicalString,
	Integer:   PhysicalInt64,
	BigInt:    PhysicalInt64,
	SmallInt:  PhysicalInt64,
	TinyInt:   PhysicalInt64,
	Float:     PhysicalFloat64,
	Double:    PhysicalFloat64,
	Real:      PhysicalFloat64,
	Decimal:   PhysicalNumeric,
	Numeric:   PhysicalNumeric,
	Boolean:   PhysicalBool,
	Date:      PhysicalDate,
	DateTime:  PhysicalDateTime,
	Time:      PhysicalTime,
	Timestamp: PhysicalTimestamp,
	JSON:      PhysicalJSON,
	Bytes:     PhysicalBytes,
	Geography: PhysicalGeography,
	Struct:    PhysicalRecord,
}

// ParseLogicalType normalizes a type name such as "integer" or "Decimal".
func ParseLogicalType(name string) (LogicalType, error) {
	t := LogicalType(strings.ToUpper(strings.TrimSpace(name)))
	if t == "RECORD" {
		t = Struct
	}
	if _, ok := physicalByLogical[t]; !ok {
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownType, name)
	}
	return t, nil
}

// Known reports whether t is a supported logical type.
func (t LogicalType) Known() bool {
	_, ok := physicalByLogical[t]
	return ok
}

// IsNumeric reports whether the type is one of the fixed-point types.
func (t LogicalType) IsNumeric() bool {
	return t == Decimal || t == Numeric
}

// Mode is the column mode of a physical field.
type Mode string

const (
	ModeNullable Mode = "NULLABLE"
	ModeRequired Mode = "REQUIRED"
	ModeRepeated Mode = "REPEATED"
)

// Attribute declares one entity attribute.
type Attribute struct {
	Default    any
	Name       string
	Type       LogicalType
	Fields     []Attribute
	Precision  int
	Scale      int
	Required   bool
	PrimaryKey bool
	Repeated   bool
	Encrypted  bool
}

// AllowNull reports whether the attribute accepts NULL.
func (a Attribute) AllowNull() bool {
	return !a.Required && !a.PrimaryKey
}

// Field is the physical schema of one warehouse column.
type Field struct {
	Name      string  `json:"name" yaml:"name"`
	Type      string  `json:"type" yaml:"type"`
	Mode      Mode    `json:"mode" yaml:"mode"`
	Precision int     `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale     int     `json:"scale,omitempty" yaml:"scale,omitempty"`
	Fields    []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Resolve maps an attribute declaration to its physical column schema.
func Resolve(attr Attribute) (Field, error) {
	physical, ok := physicalByLogical[attr.Type]
	if !ok {
		return Field{}, fmt.Errorf("%w: %q on attribute %s", errors.ErrUnknownType, attr.Type, attr.Name)
	}

	field := Field{
		Name: attr.Name,
		Type: physical,
		Mode: ModeNullable,
	}
	if !attr.AllowNull() {
		field.Mode = ModeRequired
	}
	if attr.Repeated {
		field.Mode = ModeRepeated
	}

	switch {
	case attr.Encrypted:
		// Ciphertext envelopes are stored as text regardless of the declared type.
		field.Type = PhysicalString
		if attr.Repeated {
			field.Mode = ModeNullable
		}
	case attr.Type.IsNumeric():
		field.Precision = attr.Precision
		field.Scale = attr.Scale
		if field.Precision == 0 {
			field.Precision = DefaultPrecision
		}
		if field.Scale == 0 && attr.Precision == 0 {
			field.Scale = DefaultScale
		}
	case attr.Type == Struct:
		if len(attr.Fields) == 0 {
			return Field{}, fmt.Errorf("%w: struct attribute %s has no fields", errors.ErrInvalidModel, attr.Name)
		}
		nested := make([]Field, 0, len(attr.Fields))
		for _, child := range attr.Fields {
			f, err := Resolve(child)
			if err != nil {
				return Field{}, err
			}
			nested = append(nested, f)
		}
		field.Fields = nested
	}

	return field, nil
}

// ResolveAll resolves attributes in order.
func ResolveAll(attrs []Attribute) ([]Field, error) {
	fields := make([]Field, 0, len(attrs))
	for _, attr := range attrs {
		f, err := Resolve(attr)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Validate checks an attribute declaration recursively without building a schema.
func Validate(attr Attribute) error {
	_, err := Resolve(attr)
	return err
}
