package services

import (
	"context"
	"strings"

	"google.golang.org/api/idtoken"

	"github.com/example/sitesnap/internal/apperr"
)

// OAuthIdentity is what a verified provider token tells us about a user.
type OAuthIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// OAuthVerifier checks a provider id token.
type OAuthVerifier interface {
	Verify(ctx context.Context, rawToken string) (*OAuthIdentity, error)
}

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier validates Google id tokens against the configured client id.
type GoogleVerifier struct {
	clientID string
	validate validateFunc
}

// NewGoogleVerifier returns a verifier that fails every call with
// ErrProviderNotConfigured when clientID is empty.
func NewGoogleVerifier(clientID string) OAuthVerifier {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return unconfiguredVerifier{}
	}
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (*OAuthIdentity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperr.ErrInvalidToken
	}
	payload, err := v.validate(ctx, rawToken, v.clientID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeUnauthorized, err, apperr.ErrInvalidToken.Message())
	}
	if payload.Subject == "" {
		return nil, apperr.ErrInvalidToken
	}

	identity := &OAuthIdentity{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		identity.Email = strings.ToLower(strings.TrimSpace(email))
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	if name, ok := payload.Claims["name"].(string); ok {
		identity.Name = name
	}
	if picture, ok := payload.Claims["picture"].(string); ok {
		identity.Picture = picture
	}
	return identity, nil
}

type unconfiguredVerifier struct{}

func (unconfiguredVerifier) Verify(context.Context, string) (*OAuthIdentity, error) {
	return nil, apperr.ErrProviderNotConfigured
}
