package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/types"
)

func TestResolveScalarFamilies(t *testing.T) {
	tests := []struct {
		name     string
		attr     types.Attribute
		wantType string
		wantMode types.Mode
	}{
		{"string", types.Attribute{Name: "name", Type: types.String}, "STRING", types.ModeNullable},
		{"uuid", types.Attribute{Name: "ref", Type: types.UUID}, "STRING", types.ModeNullable},
		{"bigint required", types.Attribute{Name: "n", Type: types.BigInt, Required: true}, "INT64", types.ModeRequired},
		{"primary key", types.Attribute{Name: "id", Type: types.Integer, PrimaryKey: true}, "INT64", types.ModeRequired},
		{"double", types.Attribute{Name: "score", Type: types.Double}, "FLOAT64", types.ModeNullable},
		{"boolean", types.Attribute{Name: "active", Type: types.Boolean}, "BOOL", types.ModeNullable},
		{"timestamp", types.Attribute{Name: "at", Type: types.Timestamp}, "TIMESTAMP", types.ModeNullable},
		{"repeated wins over required", types.Attribute{Name: "tags", Type: types.String, Repeated: true, Required: true}, "STRING", types.ModeRepeated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, err := types.Resolve(tt.attr)
			require.NoError(t, err)
			assert.Equal(t, tt.attr.Name, field.Name)
			assert.Equal(t, tt.wantType, field.Type)
			assert.Equal(t, tt.wantMode, field.Mode)
		})
	}
}

func TestResolveNumericDefaults(t *testing.T) {
	field, err := types.Resolve(types.Attribute{Name: "amount", Type: types.Decimal})
	require.NoError(t, err)
	assert.Equal(t, "NUMERIC", field.Type)
	assert.Equal(t, 38, field.Precision)
	assert.Equal(t, 9, field.Scale)

	field, err = types.Resolve(types.Attribute{Name: "amount", Type: types.Numeric, Precision: 10, Scale: 2})
	require.NoError(t, err)
	assert.Equal(t, "NUMERIC", field.Type)
	assert.Equal(t, 10, field.Precision)
	assert.Equal(t, 2, field.Scale)
}

func TestResolveStruct(t *testing.T) {
	field, err := types.Resolve(types.Attribute{
		Name: "address",
		Type: types.Struct,
		Fields: []types.Attribute{
			{Name: "city", Type: types.String, Required: true},
			{Name: "lines", Type: types.Text, Repeated: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "RECORD", field.Type)
	require.Len(t, field.Fields, 2)
	assert.Equal(t, types.ModeRequired, field.Fields[0].Mode)
	assert.Equal(t, types.ModeRepeated, field.Fields[1].Mode)
}

func TestResolveUnknownTypeFails(t *testing.T) {
	_, err := types.Resolve(types.Attribute{Name: "x", Type: "VARCHARISH"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownType)
	assert.True(t, errors.IsConfiguration(err))
}

func TestResolveEncryptedIsString(t *testing.T) {
	field, err := types.Resolve(types.Attribute{Name: "ssn", Type: types.Integer, Encrypted: true})
	require.NoError(t, err)
	assert.Equal(t, "STRING", field.Type)
}

func TestParseLogicalType(t *testing.T) {
	lt, err := types.ParseLogicalType(" integer ")
	require.NoError(t, err)
	assert.Equal(t, types.Integer, lt)

	lt, err = types.ParseLogicalType("record")
	require.NoError(t, err)
	assert.Equal(t, types.Struct, lt)

	_, err = types.ParseLogicalType("money")
	assert.ErrorIs(t, err, errors.ErrUnknownType)
}

func TestResolveDefault(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, now, types.ResolveDefault(types.DefaultNow, now))
	assert.Equal(t, "draft", types.ResolveDefault("draft", now))
	assert.Nil(t, types.ResolveDefault(nil, now))

	a := types.ResolveDefault(types.DefaultUUID, now)
	b := types.ResolveDefault(types.DefaultUUID, now)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)

	u := types.ResolveDefault(types.DefaultULID, now)
	assert.Len(t, u, 26)
}

func TestParseSentinel(t *testing.T) {
	s, ok := types.ParseSentinel("now")
	assert.True(t, ok)
	assert.Equal(t, types.DefaultNow, s)

	_, ok = types.ParseSentinel("tomorrow")
	assert.False(t, ok)
}
