package policy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sitesnap/internal/apperr"
)

func ptr(id uuid.UUID) *uuid.UUID { return &id }

var (
	sellerA = uuid.New()
	sellerB = uuid.New()

	admin     = Actor{UserID: uuid.New(), Role: RoleAdmin}
	visitor   = Actor{UserID: uuid.New(), Role: RoleVisitor}
	anonymous = Actor{}
	actorA    = Actor{UserID: uuid.New(), Role: RoleSeller, SellerID: ptr(sellerA)}
	actorB    = Actor{UserID: uuid.New(), Role: RoleSeller, SellerID: ptr(sellerB)}
	noProfile = Actor{UserID: uuid.New(), Role: RoleSeller}
)

func TestAdminIsUnscoped(t *testing.T) {
	for _, op := range []Operation{OpList, OpRead, OpUpdate, OpDelete} {
		dec, err := Evaluate(Request{Actor: admin, Operation: op, Resource: ResourceProduct, OwnerID: ptr(sellerA)})
		require.NoError(t, err, op)
		assert.Nil(t, dec.Scope)
		assert.False(t, dec.PublicOnly)
	}
}

func TestAdminMustSpecifyOwnerOnDirectCreate(t *testing.T) {
	_, err := Evaluate(Request{Actor: admin, Operation: OpCreate, Resource: ResourceProduct})
	assert.ErrorIs(t, err, apperr.ErrMissingOwner)

	dec, err := Evaluate(Request{Actor: admin, Operation: OpCreate, Resource: ResourceProduct, OwnerID: ptr(sellerB)})
	require.NoError(t, err)
	assert.Equal(t, sellerB, *dec.Owner)

	_, err = Evaluate(Request{Actor: admin, Operation: OpCreate, Resource: ResourceAttribute})
	assert.NoError(t, err)
}

func TestSellerListIsScoped(t *testing.T) {
	dec, err := Evaluate(Request{Actor: actorA, Operation: OpList, Resource: ResourceProduct})
	require.NoError(t, err)
	require.NotNil(t, dec.Scope)
	assert.Equal(t, sellerA, *dec.Scope)
	assert.False(t, dec.IncludeUnclaimed)

	dec, err = Evaluate(Request{Actor: actorA, Operation: OpList, Resource: ResourceSite})
	require.NoError(t, err)
	assert.Equal(t, sellerA, *dec.Scope)
	assert.True(t, dec.IncludeUnclaimed)
}

func TestSellerCannotTouchAnotherSellersResource(t *testing.T) {
	for _, res := range []Resource{ResourceProduct, ResourceCategory, ResourceBusiness, ResourceSite, ResourceAnalytics, ResourceAttribute} {
		for _, op := range []Operation{OpRead, OpUpdate, OpDelete} {
			_, err := Evaluate(Request{Actor: actorB, Operation: op, Resource: res, OwnerID: ptr(sellerA)})
			assert.ErrorIs(t, err, apperr.ErrOwnershipViolation, "%s %s", res, op)

			_, err = Evaluate(Request{Actor: actorA, Operation: op, Resource: res, OwnerID: ptr(sellerA)})
			assert.NoError(t, err, "%s %s", res, op)
		}
	}
}

func TestSellerCreateDefaultsOwner(t *testing.T) {
	dec, err := Evaluate(Request{Actor: actorA, Operation: OpCreate, Resource: ResourceCategory})
	require.NoError(t, err)
	assert.Equal(t, sellerA, *dec.Owner)

	_, err = Evaluate(Request{Actor: actorA, Operation: OpCreate, Resource: ResourceCategory, OwnerID: ptr(sellerB)})
	assert.ErrorIs(t, err, apperr.ErrOwnershipViolation)
}

func TestTransitiveUnclaimedIsOpenToSellers(t *testing.T) {
	_, err := Evaluate(Request{Actor: actorB, Operation: OpUpdate, Resource: ResourceAttribute, Unclaimed: true})
	assert.NoError(t, err)

	_, err = Evaluate(Request{Actor: actorB, Operation: OpUpdate, Resource: ResourceAttribute})
	assert.ErrorIs(t, err, apperr.ErrOwnershipViolation)

	_, err = Evaluate(Request{Actor: noProfile, Operation: OpUpdate, Resource: ResourceAttribute, Unclaimed: true})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSellerWithoutProfile(t *testing.T) {
	_, err := Evaluate(Request{Actor: noProfile, Operation: OpCreate, Resource: ResourceProduct})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	dec, err := Evaluate(Request{Actor: noProfile, Operation: OpList, Resource: ResourceProduct})
	require.NoError(t, err)
	assert.True(t, dec.PublicOnly)

	_, err = Evaluate(Request{Actor: noProfile, Operation: OpList, Resource: ResourceBusiness})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestUnownedResourcesAreSharedAmongSellers(t *testing.T) {
	for _, res := range []Resource{ResourceHeroSlide, ResourceStory, ResourceStoryCard} {
		for _, op := range []Operation{OpList, OpRead, OpCreate, OpUpdate, OpDelete} {
			dec, err := Evaluate(Request{Actor: actorA, Operation: op, Resource: res})
			require.NoError(t, err, "%s %s", res, op)
			assert.Nil(t, dec.Scope)
		}
	}
}

func TestVisitorAndAnonymous(t *testing.T) {
	cases := []struct {
		actor   Actor
		res     Resource
		op      Operation
		wantErr error
	}{
		{visitor, ResourceProduct, OpList, nil},
		{visitor, ResourceStory, OpRead, nil},
		{visitor, ResourceStoryCard, OpRead, apperr.ErrForbidden},
		{visitor, ResourceBusiness, OpList, apperr.ErrForbidden},
		{visitor, ResourceProduct, OpCreate, apperr.ErrForbidden},
		{anonymous, ResourceCategory, OpList, nil},
		{anonymous, ResourceAttribute, OpRead, nil},
		{anonymous, ResourceSite, OpRead, apperr.ErrUnauthenticated},
		{anonymous, ResourceHeroSlide, OpCreate, apperr.ErrUnauthenticated},
	}

	for _, tc := range cases {
		dec, err := Evaluate(Request{Actor: tc.actor, Operation: tc.op, Resource: tc.res})
		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr, "%s %s", tc.res, tc.op)
			continue
		}
		require.NoError(t, err, "%s %s", tc.res, tc.op)
		assert.True(t, dec.PublicOnly)
	}
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleSeller.Valid())
	assert.False(t, Role("owner").Valid())
	assert.False(t, Role("").Valid())
}
