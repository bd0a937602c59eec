package utils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	id := uuid.New()
	token, err := GenerateToken("secret", id, time.Hour)
	require.NoError(t, err)

	parsed, err := ParseToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseTokenRejectsTamperingAndExpiry(t *testing.T) {
	id := uuid.New()

	token, err := GenerateToken("secret", id, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("other-secret", token)
	assert.Error(t, err)

	expired, err := GenerateToken("secret", id, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("secret", expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = ParseToken("secret", "not-a-token")
	assert.Error(t, err)
}

func TestParseTokenRejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	assert.Error(t, err)

	claims.Issuer = "someone-else"
	claims.Subject = uuid.NewString()
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseToken("secret", foreign)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
	assert.False(t, CheckPassword("", "secret1"))
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	var got Pagination
	app.Get("/", func(c *fiber.Ctx) error {
		got = ParsePagination(c)
		return nil
	})

	cases := map[string]Pagination{
		"/":                    {Page: 1, Limit: 50, Offset: 0},
		"/?page=3&limit=10":    {Page: 3, Limit: 10, Offset: 20},
		"/?page=-1&limit=0":    {Page: 1, Limit: 50, Offset: 0},
		"/?limit=1000":         {Page: 1, Limit: 100, Offset: 0},
		"/?page=abc&limit=xyz": {Page: 1, Limit: 50, Offset: 0},
	}
	for target, want := range cases {
		_, err := app.Test(httptest.NewRequest("GET", target, nil))
		require.NoError(t, err)
		assert.Equal(t, want, got, target)
	}
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	type body struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
	}

	err := Validate(&body{Email: "nope", Password: "123"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email must be a valid email")
	assert.Contains(t, err.Error(), "password must be at least 6")
}
