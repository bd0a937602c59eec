package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"

	"github.com/example/sitesnap/internal/apperr"
)

func TestGoogleVerifierMapsClaims(t *testing.T) {
	var gotAudience string
	v := &GoogleVerifier{clientID: "client-1", validate: func(_ context.Context, _, audience string) (*idtoken.Payload, error) {
		gotAudience = audience
		return &idtoken.Payload{
			Subject: "sub-1",
			Claims: map[string]interface{}{
				"email":          " G@X.com",
				"email_verified": true,
				"name":           "G",
			},
		}, nil
	}}

	identity, err := v.Verify(context.Background(), "raw")
	require.NoError(t, err)
	assert.Equal(t, "client-1", gotAudience)
	assert.Equal(t, "sub-1", identity.Subject)
	assert.Equal(t, "g@x.com", identity.Email)
	assert.True(t, identity.EmailVerified)
	assert.Equal(t, "G", identity.Name)
}

func TestGoogleVerifierRejects(t *testing.T) {
	failing := &GoogleVerifier{clientID: "c", validate: func(context.Context, string, string) (*idtoken.Payload, error) {
		return nil, errors.New("audience mismatch")
	}}
	_, err := failing.Verify(context.Background(), "raw")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = failing.Verify(context.Background(), " ")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	noSubject := &GoogleVerifier{clientID: "c", validate: func(context.Context, string, string) (*idtoken.Payload, error) {
		return &idtoken.Payload{}, nil
	}}
	_, err = noSubject.Verify(context.Background(), "raw")
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = NewGoogleVerifier(" ").Verify(context.Background(), "raw")
	assert.ErrorIs(t, err, apperr.ErrProviderNotConfigured)
}
