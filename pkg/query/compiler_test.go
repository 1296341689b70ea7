package query_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/query"
	"github.com/theory-cloud/columntheory/pkg/types"
)

// shop registers User, Order, Item, Tag, UserTag and Profile with every
// association kind between them.
func shop(t *testing.T) *model.Registry {
	t.Helper()
	r := model.NewRegistry()
	define := func(name string, attrs ...types.Attribute) {
		_, err := r.Define(model.Definition{Name: name, Attributes: attrs})
		require.NoError(t, err)
	}
	define("User", types.Attribute{Name: "id", Type: types.Integer, PrimaryKey: true}, types.Attribute{Name: "name", Type: types.String})
	define("Order", types.Attribute{Name: "id", Type: types.Integer, PrimaryKey: true}, types.Attribute{Name: "amount", Type: types.Numeric})
	define("Item", types.Attribute{Name: "id", Type: types.Integer, PrimaryKey: true}, types.Attribute{Name: "sku", Type: types.String})
	define("Tag", types.Attribute{Name: "id", Type: types.Integer, PrimaryKey: true}, types.Attribute{Name: "label", Type: types.String})
	define("UserTag")
	define("Profile", types.Attribute{Name: "bio", Type: types.Text})
	define("Secret", types.Attribute{Name: "ssn", Type: types.String, Encrypted: true})

	associate := func(kind model.Kind, source, target string, opts model.AssociationOptions) {
		_, err := r.Associate(kind, source, target, opts)
		require.NoError(t, err)
	}
	associate(model.KindHasMany, "User", "Order", model.AssociationOptions{})
	associate(model.KindOwnedBy, "Order", "User", model.AssociationOptions{})
	associate(model.KindHasMany, "Order", "Item", model.AssociationOptions{})
	associate(model.KindManyToMany, "User", "Tag", model.AssociationOptions{Through: "UserTag", OtherKey: "tagId"})
	associate(model.KindOwnsOne, "User", "Profile", model.AssociationOptions{})
	return r
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestFindFlat(t *testing.T) {
	c := query.NewCompiler(shop(t))

	q, err := c.Find("User", query.FindRequest{Where: query.Filter{"id": 1}})
	require.NoError(t, err)

	assert.Equal(t, "SELECT `user`.`id` AS `user_id`, `user`.`name` AS `user_name` FROM `user` AS `user` WHERE `user`.`id` = @param0", q.SQL)
	assert.Equal(t, map[string]any{"param0": 1}, q.Params)
	assert.Equal(t, "user", q.Plan.Alias)
	assert.True(t, q.Plan.ExposeKey)
}

func TestFindPaginatedHasMany(t *testing.T) {
	c := query.NewCompiler(shop(t))

	q, err := c.Find("User", query.FindRequest{
		Where: query.Filter{"id": 1},
		Include: []query.Include{{
			Entity: "Order",
			Where:  query.Filter{"amount": query.Ops{"gt": 100}},
		}},
		Limit: 1,
	})
	require.NoError(t, err)

	golden(t).Assert(t, "find_paginated_has_many", []byte(q.SQL+"\n"))
	assert.Equal(t, map[string]any{"param0": 1, "param1": 100}, q.Params)
}

func TestFindAndCountOrdered(t *testing.T) {
	c := query.NewCompiler(shop(t))

	q, err := c.FindAndCount("User", query.FindRequest{
		Include: []query.Include{{As: "orders"}},
		Order:   []query.Order{query.Desc("name")},
		Limit:   2,
		Offset:  4,
	})
	require.NoError(t, err)

	golden(t).Assert(t, "find_and_count_ordered", []byte(q.SQL+"\n"))
	assert.Equal(t, query.TotalColumn, q.CountColumn)
	assert.Empty(t, q.Params)
}

func TestFindNestedManyToMany(t *testing.T) {
	c := query.NewCompiler(shop(t))

	q, err := c.Find("User", query.FindRequest{
		Attributes: []string{"name"},
		Include: []query.Include{
			{As: "tags", Attributes: []string{"label"}, Required: true},
			{As: "orders", Include: []query.Include{{As: "items", Where: query.Filter{"sku": "A"}}}},
		},
	})
	require.NoError(t, err)

	golden(t).Assert(t, "find_nested_many_to_many", []byte(q.SQL+"\n"))

	root := q.Plan
	assert.False(t, root.ExposeKey)
	assert.Equal(t, []string{"id", "name"}, root.Selected)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "orders__items", root.Children[1].Children[0].Alias)
	assert.Equal(t, "items", root.Children[1].Children[0].As)
	assert.Equal(t, []string{"user", "tags", "orders", "orders__items"}, root.Aliases())
}

func TestFindOwnedBy(t *testing.T) {
	c := query.NewCompiler(shop(t))

	q, err := c.Find("Order", query.FindRequest{
		Include: []query.Include{{As: "user", Attributes: []string{"name"}}},
		Limit:   5,
		Offset:  10,
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT `order`.`id` AS `order_id`, `order`.`amount` AS `order_amount`, `order`.`userId` AS `order_userId`, "+
		"`user`.`id` AS `user_id`, `user`.`name` AS `user_name` "+
		"FROM `order` AS `order` LEFT OUTER JOIN `user` AS `user` ON `order`.`userId` = `user`.`id` LIMIT 5 OFFSET 10", q.SQL)
	assert.False(t, q.Plan.Children[0].ExposeKey)
}

func TestFindOwnsOneRequired(t *testing.T) {
	c := query.NewCompiler(shop(t))

	q, err := c.Find("User", query.FindRequest{
		Attributes: []string{"id"},
		Include:    []query.Include{{Entity: "Profile", Required: true, Attributes: []string{"bio"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `user`.`id` AS `user_id`, `profile`.`id` AS `profile_id`, `profile`.`bio` AS `profile_bio` "+
		"FROM `user` AS `user` INNER JOIN `profile` AS `profile` ON `user`.`id` = `profile`.`userId`", q.SQL)
}

func TestOffsetWithoutLimit(t *testing.T) {
	c := query.NewCompiler(shop(t))
	q, err := c.Find("Tag", query.FindRequest{Offset: 3, Order: []query.Order{query.Asc("label")}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `tag`.`id` AS `tag_id`, `tag`.`label` AS `tag_label` FROM `tag` AS `tag` "+
		"ORDER BY `tag`.`label` ASC LIMIT 9223372036854775807 OFFSET 3", q.SQL)
}

func TestPageSubqueryJoinsReferencedIncludes(t *testing.T) {
	c := query.NewCompiler(shop(t))

	q, err := c.Find("User", query.FindRequest{
		Where:   query.Filter{"orders.amount": query.Ops{"gte": 10}},
		Include: []query.Include{{As: "orders"}, {As: "tags"}},
		Order:   []query.Order{query.Desc("orders.amount")},
		Limit:   1,
	})
	require.NoError(t, err)

	assert.Contains(t, q.SQL, "`user`.`id` IN (SELECT `user`.`id` FROM `user` AS `user` "+
		"LEFT OUTER JOIN `order` AS `orders` ON `user`.`id` = `orders`.`userId` "+
		"WHERE `orders`.`amount` >= @param0 GROUP BY `user`.`id` ORDER BY MAX(`orders`.`amount`) DESC LIMIT 1)")
	// Tags are joined once, by the outer select only.
	assert.Equal(t, 1, countOf(q.SQL, "AS `tags_through`"))
	assert.Equal(t, 2, countOf(q.SQL, "AS `orders`"))
}

func TestIncludeErrors(t *testing.T) {
	c := query.NewCompiler(shop(t))

	_, err := c.Find("User", query.FindRequest{Include: []query.Include{{Entity: "Tag", As: "orders"}}})
	assert.ErrorIs(t, err, errors.ErrRelationNotFound)
	assert.True(t, errors.IsConfiguration(err))

	_, err = c.Find("User", query.FindRequest{Include: []query.Include{{Entity: "Item"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRelationNotFound)
	assert.Contains(t, err.Error(), "Item")

	_, err = c.Find("User", query.FindRequest{Include: []query.Include{{As: "orders"}, {Entity: "Order"}}})
	assert.ErrorIs(t, err, errors.ErrAliasConflict)

	_, err = c.Find("User", query.FindRequest{Include: []query.Include{{As: "orders", Attributes: []string{"nope"}}}})
	assert.ErrorIs(t, err, errors.ErrUnknownAttribute)

	_, err = c.Find("Nope", query.FindRequest{})
	assert.ErrorIs(t, err, errors.ErrEntityNotFound)
}

func TestWhereErrors(t *testing.T) {
	c := query.NewCompiler(shop(t))

	_, err := c.Find("Secret", query.FindRequest{Where: query.Filter{"ssn": "1"}})
	assert.ErrorIs(t, err, errors.ErrEncryptedFieldNotQueryable)

	_, err = c.Find("User", query.FindRequest{Where: query.Filter{"email": "a"}})
	assert.ErrorIs(t, err, errors.ErrUnknownAttribute)

	_, err = c.Find("User", query.FindRequest{Where: query.Filter{"orders.amount": 1}})
	assert.ErrorIs(t, err, errors.ErrRelationNotFound)

	_, err = c.Find("User", query.FindRequest{Where: query.Filter{"name": query.Ops{"approx": "a"}}})
	assert.ErrorIs(t, err, errors.ErrInvalidOperator)

	_, err = c.Find("User", query.FindRequest{Limit: -1})
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = c.Find("User", query.FindRequest{
		Include: []query.Include{{As: "tags"}},
		Where:   query.Filter{"tags_through.userId": 1},
	})
	assert.ErrorIs(t, err, errors.ErrRelationNotFound)
}

func TestAggregate(t *testing.T) {
	c := query.NewCompiler(shop(t))

	q, err := c.Aggregate("Order", query.FindRequest{Where: query.Filter{"amount": query.Ops{"gt": 5}}},
		query.Aggregate{Func: query.Sum, Field: "amount"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(`order`.`amount`) AS `sum` FROM `order` AS `order` WHERE `order`.`amount` > @param0", q.SQL)
	assert.Equal(t, "sum", q.ResultColumn)

	q, err = c.Aggregate("User", query.FindRequest{
		Include: []query.Include{{As: "orders", Where: query.Filter{"amount": query.Ops{"gt": 1}}}},
	}, query.Aggregate{Func: query.Count})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(DISTINCT `user`.`id`) AS `count` FROM `user` AS `user` "+
		"LEFT OUTER JOIN `order` AS `orders` ON `user`.`id` = `orders`.`userId` WHERE `orders`.`amount` > @param0", q.SQL)

	q, err = c.Aggregate("Order", query.FindRequest{Group: []string{"userId"}}, query.Aggregate{Func: query.Count, As: "n"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `order`.`userId` AS `order_userId`, COUNT(*) AS `n` FROM `order` AS `order` GROUP BY `order`.`userId`", q.SQL)

	q, err = c.Aggregate("User", query.FindRequest{
		Include: []query.Include{{As: "orders", Where: query.Filter{"amount": query.Ops{"gt": 1}}}},
	}, query.Aggregate{Func: query.Sum, Field: "id"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(`user`.`id`) AS `sum` FROM `user` AS `user` WHERE `user`.`id` IN "+
		"(SELECT `user`.`id` FROM `user` AS `user` LEFT OUTER JOIN `order` AS `orders` ON `user`.`id` = `orders`.`userId` "+
		"WHERE `orders`.`amount` > @param0)", q.SQL)

	q, err = c.Aggregate("User", query.FindRequest{
		Include: []query.Include{{As: "orders", Where: query.Filter{"amount": query.Ops{"gt": 1}}}},
	}, query.Aggregate{Func: query.Sum, Field: "orders.amount"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(`orders`.`amount`) AS `sum` FROM `user` AS `user` "+
		"LEFT OUTER JOIN `order` AS `orders` ON `user`.`id` = `orders`.`userId` WHERE `orders`.`amount` > @param0", q.SQL)

	_, err = c.Aggregate("Order", query.FindRequest{}, query.Aggregate{Func: query.Max})
	assert.ErrorIs(t, err, errors.ErrInvalidOperator)

	_, err = c.Aggregate("Order", query.FindRequest{}, query.Aggregate{Func: "MEDIAN", Field: "amount"})
	assert.ErrorIs(t, err, errors.ErrInvalidOperator)
}

func TestDatasetQualifiedTables(t *testing.T) {
	r := shop(t)
	user, err := r.Entity("User")
	require.NoError(t, err)

	assert.Equal(t, "`analytics.user`", query.NewCompiler(r, query.WithDataset("analytics")).Table(user))
	assert.Equal(t, "`acme-prod.analytics.user`", query.NewCompiler(r, query.WithProject("acme-prod"), query.WithDataset("analytics")).Table(user))
	assert.Equal(t, "`user`", query.NewCompiler(r, query.WithProject("ignored")).Table(user))
}

func countOf(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
