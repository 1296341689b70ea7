package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/types"
)

func userOrderRegistry(t *testing.T) *model.Registry {
	t.Helper()
	r := model.NewRegistry()
	_, err := r.Define(model.Definition{
		Name: "User",
		Attributes: []types.Attribute{
			{Name: "id", Type: types.Integer, PrimaryKey: true},
			{Name: "name", Type: types.String},
		},
	})
	require.NoError(t, err)
	_, err = r.Define(model.Definition{
		Name: "Order",
		Attributes: []types.Attribute{
			{Name: "id", Type: types.Integer, PrimaryKey: true},
			{Name: "amount", Type: types.Numeric},
		},
	})
	require.NoError(t, err)
	return r
}

func TestDefineDefaults(t *testing.T) {
	r := model.NewRegistry()

	e, err := r.Define(model.Definition{
		Name:       "Event",
		Attributes: []types.Attribute{{Name: "kind", Type: types.String}},
		Timestamps: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "event", e.TableName)
	assert.Equal(t, "id", e.PrimaryKey)
	assert.Equal(t, []string{"id", "kind", "createdAt", "updatedAt"}, e.AttributeNames())

	created, ok := e.Attribute("createdAt")
	require.True(t, ok)
	assert.Equal(t, types.DefaultNow, created.Default)
}

func TestDefineSnakeCaseTimestamps(t *testing.T) {
	r := model.NewRegistryWithConvention(naming.SnakeCase)
	e, err := r.Define(model.Definition{Name: "Event", Timestamps: true})
	require.NoError(t, err)
	assert.True(t, e.HasAttribute("created_at"))
	assert.True(t, e.HasAttribute("updated_at"))
}

func TestDefineRejectsBadDefinitions(t *testing.T) {
	r := model.NewRegistry()

	_, err := r.Define(model.Definition{
		Name:       "Bad",
		Attributes: []types.Attribute{{Name: "x", Type: "VARCHAR2"}},
	})
	assert.ErrorIs(t, err, errors.ErrUnknownType)
	assert.True(t, errors.IsConfiguration(err))

	_, err = r.Define(model.Definition{
		Name: "Dup",
		Attributes: []types.Attribute{
			{Name: "x", Type: types.String},
			{Name: "x", Type: types.Integer},
		},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidModel)

	_, err = r.Define(model.Definition{
		Name:       "Secret",
		Attributes: []types.Attribute{{Name: "id", Type: types.String, PrimaryKey: true, Encrypted: true}},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidModel)

	_, err = r.Define(model.Definition{Name: "Drop`Table"})
	assert.ErrorIs(t, err, errors.ErrInvalidIdentifier)

	_, err = r.Define(model.Definition{Name: "Once"})
	require.NoError(t, err)
	_, err = r.Define(model.Definition{Name: "Once"})
	assert.ErrorIs(t, err, errors.ErrInvalidModel)
}

func TestEntityLookup(t *testing.T) {
	r := userOrderRegistry(t)

	_, err := r.Entity("Missing")
	assert.ErrorIs(t, err, errors.ErrEntityNotFound)

	names := make([]string, 0)
	for _, e := range r.Entities() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"User", "Order"}, names)
}

func TestHasManyBackfillsForeignKeyOnTarget(t *testing.T) {
	r := userOrderRegistry(t)

	assoc, err := r.Associate(model.KindHasMany, "User", "Order", model.AssociationOptions{})
	require.NoError(t, err)

	hm, ok := assoc.(model.HasMany)
	require.True(t, ok)
	assert.Equal(t, "orders", hm.Alias())
	assert.Equal(t, "userId", hm.ForeignKey)
	assert.Equal(t, "id", hm.SourceKey)

	order, err := r.Entity("Order")
	require.NoError(t, err)
	fk, ok := order.Attribute("userId")
	require.True(t, ok)
	assert.Equal(t, types.Integer, fk.Type)
	assert.True(t, fk.AllowNull())
}

func TestOwnedByBackfillsForeignKeyOnSource(t *testing.T) {
	r := userOrderRegistry(t)

	assoc, err := r.Associate(model.KindOwnedBy, "Order", "User", model.AssociationOptions{As: "buyer"})
	require.NoError(t, err)

	ob := assoc.(model.OwnedBy)
	assert.Equal(t, "buyerId", ob.ForeignKey)
	assert.Equal(t, "id", ob.TargetKey)

	order, _ := r.Entity("Order")
	assert.True(t, order.HasAttribute("buyerId"))
}

func TestBackfillKeepsExistingAttribute(t *testing.T) {
	r := model.NewRegistry()
	_, err := r.Define(model.Definition{Name: "Account", Attributes: []types.Attribute{
		{Name: "code", Type: types.String, PrimaryKey: true},
	}})
	require.NoError(t, err)
	_, err = r.Define(model.Definition{Name: "Invoice", Attributes: []types.Attribute{
		{Name: "accountId", Type: types.String, Required: true},
	}})
	require.NoError(t, err)

	_, err = r.Associate(model.KindOwnedBy, "Invoice", "Account", model.AssociationOptions{})
	require.NoError(t, err)

	invoice, _ := r.Entity("Invoice")
	fk, _ := invoice.Attribute("accountId")
	assert.True(t, fk.Required)
}

func TestBackfillFollowsReferencedKeyType(t *testing.T) {
	r := model.NewRegistry()
	_, err := r.Define(model.Definition{Name: "Tenant", Attributes: []types.Attribute{
		{Name: "slug", Type: types.String, PrimaryKey: true},
	}})
	require.NoError(t, err)
	_, err = r.Define(model.Definition{Name: "Site"})
	require.NoError(t, err)

	_, err = r.Associate(model.KindHasMany, "Tenant", "Site", model.AssociationOptions{})
	require.NoError(t, err)

	site, _ := r.Entity("Site")
	fk, ok := site.Attribute("tenantId")
	require.True(t, ok)
	assert.Equal(t, types.String, fk.Type)
}

func TestAliasConflictRejected(t *testing.T) {
	r := userOrderRegistry(t)

	_, err := r.Associate(model.KindHasMany, "User", "Order", model.AssociationOptions{})
	require.NoError(t, err)

	_, err = r.Associate(model.KindHasMany, "User", "Order", model.AssociationOptions{ForeignKey: "ownerId"})
	assert.ErrorIs(t, err, errors.ErrAliasConflict)
	assert.True(t, errors.IsConfiguration(err))

	// The first registration is untouched.
	assoc, ok := r.Lookup("User", "orders")
	require.True(t, ok)
	assert.Equal(t, "userId", assoc.(model.HasMany).ForeignKey)
}

func TestManyToManyRequiresJunction(t *testing.T) {
	r := model.NewRegistry()
	for _, name := range []string{"Post", "Tag", "PostTag"} {
		_, err := r.Define(model.Definition{Name: name})
		require.NoError(t, err)
	}

	_, err := r.Associate(model.KindManyToMany, "Post", "Tag", model.AssociationOptions{OtherKey: "tagId"})
	assert.ErrorIs(t, err, errors.ErrMissingJunction)

	_, err = r.Associate(model.KindManyToMany, "Post", "Tag", model.AssociationOptions{Through: "PostTag"})
	assert.ErrorIs(t, err, errors.ErrMissingJunction)

	_, err = r.Associate(model.KindManyToMany, "Post", "Tag", model.AssociationOptions{Through: "Nope", OtherKey: "tagId"})
	assert.ErrorIs(t, err, errors.ErrMissingJunction)

	assoc, err := r.Associate(model.KindManyToMany, "Post", "Tag", model.AssociationOptions{Through: "PostTag", OtherKey: "tagId"})
	require.NoError(t, err)
	m2m := assoc.(model.ManyToMany)
	assert.Equal(t, "tags", m2m.Alias())
	assert.Equal(t, "postId", m2m.ForeignKey)

	junction, _ := r.Entity("PostTag")
	assert.True(t, junction.HasAttribute("postId"))
	assert.True(t, junction.HasAttribute("tagId"))
}

func TestLookupTarget(t *testing.T) {
	r := userOrderRegistry(t)
	_, err := r.Associate(model.KindHasMany, "User", "Order", model.AssociationOptions{})
	require.NoError(t, err)

	assoc, err := r.LookupTarget("User", "orders", "Order")
	require.NoError(t, err)
	assert.Equal(t, model.KindHasMany, assoc.Kind())

	_, err = r.LookupTarget("User", "orders", "User")
	assert.ErrorIs(t, err, errors.ErrRelationNotFound)

	_, err = r.LookupTarget("User", "invoices", "Invoice")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRelationNotFound)
	assert.Contains(t, err.Error(), "Invoice")
}

func TestKind(t *testing.T) {
	assert.True(t, model.KindHasMany.IsCollection())
	assert.True(t, model.KindManyToMany.IsCollection())
	assert.False(t, model.KindOwnedBy.IsCollection())
	assert.Equal(t, "owns-one", model.KindOwnsOne.String())
}
