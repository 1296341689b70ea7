package naming_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theory-cloud/columntheory/pkg/naming"
)

func TestColumnAliasRoundTrip(t *testing.T) {
	aliases := []string{"users", "orders", "orders__items"}

	column := naming.ColumnAlias("orders", "amount")
	assert.Equal(t, "orders_amount", column)

	alias, field, ok := naming.ParseColumnAlias(column, aliases)
	assert.True(t, ok)
	assert.Equal(t, "orders", alias)
	assert.Equal(t, "amount", field)
}

func TestParseColumnAliasPrefersLongestAlias(t *testing.T) {
	aliases := []string{"user", "user_orders"}

	alias, field, ok := naming.ParseColumnAlias("user_orders_id", aliases)
	assert.True(t, ok)
	assert.Equal(t, "user_orders", alias)
	assert.Equal(t, "id", field)

	alias, field, ok = naming.ParseColumnAlias("user_name", aliases)
	assert.True(t, ok)
	assert.Equal(t, "user", alias)
	assert.Equal(t, "name", field)
}

func TestParseColumnAliasUnknown(t *testing.T) {
	_, _, ok := naming.ParseColumnAlias("__total", []string{"users"})
	assert.False(t, ok)

	_, _, ok = naming.ParseColumnAlias("users_", []string{"users"})
	assert.False(t, ok)
}

func TestFieldOf(t *testing.T) {
	field, ok := naming.FieldOf("users_created_at", "users")
	assert.True(t, ok)
	assert.Equal(t, "created_at", field)

	_, ok = naming.FieldOf("orders_id", "users")
	assert.False(t, ok)
}

func TestAliases(t *testing.T) {
	assert.Equal(t, "tags_through", naming.JunctionAlias("tags"))
	assert.Equal(t, "orders__items", naming.NestedAlias("orders", "items"))
	assert.Equal(t, "orders", naming.NestedAlias("", "orders"))
	assert.Equal(t, "orders", naming.PluralAlias("Order"))
	assert.Equal(t, "categories", naming.PluralAlias("Category"))
	assert.Equal(t, "user", naming.SingularAlias("User"))
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, "`amount`", naming.Quote("amount"))
	assert.Equal(t, "`orders`.`amount`", naming.Column("orders", "amount"))
	assert.Equal(t, "`amount`", naming.Column("", "amount"))
	assert.Equal(t, "`we\\`ird`", naming.Quote("we`ird"))
}

func TestDefaultNames(t *testing.T) {
	assert.Equal(t, "orderitem", naming.DefaultTableName("OrderItem"))
	assert.Equal(t, "userId", naming.ForeignKey("User", naming.CamelCase))
	assert.Equal(t, "user_id", naming.ForeignKey("User", naming.SnakeCase))
	assert.Equal(t, "order_item_id", naming.ForeignKey("OrderItem", naming.SnakeCase))
	assert.Equal(t, "urlRule", naming.ConvertAttrName("URLRule", naming.CamelCase))
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"":          "",
		"ID":        "id",
		"UserID":    "user_id",
		"URLValue":  "url_value",
		"createdAt": "created_at",
	}
	for in, want := range tests {
		assert.Equal(t, want, naming.ToSnakeCase(in), in)
	}
}
