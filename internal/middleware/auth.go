package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/logger"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
)

const (
	userRecordKey   = "currentUser"
	actorContextKey = "currentActor"
)

// Identity resolves bearer tokens to users.
type Identity interface {
	ParseToken(token string) (uuid.UUID, error)
	CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authenticator loads the caller behind an Authorization header.
type Authenticator struct {
	identity Identity
	log      *logger.Logger
}

func NewAuthenticator(identity Identity, log *logger.Logger) *Authenticator {
	if log == nil {
		log = logger.Nop()
	}
	return &Authenticator{identity: identity, log: log}
}

// Required rejects requests without a valid bearer token.
func (a *Authenticator) Required() fiber.Handler {
	return a.handler(true)
}

// Optional resolves the caller when a valid token is present and otherwise
// treats the request as anonymous.
func (a *Authenticator) Optional() fiber.Handler {
	return a.handler(false)
}

func (a *Authenticator) handler(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := a.resolve(c)
		if err != nil {
			if required || !apperr.IsCode(err, apperr.CodeUnauthorized) {
				return err
			}
			return c.Next()
		}

		actor := policy.Actor{UserID: user.ID, Role: user.Role, SellerID: user.SellerID}
		c.Locals(userRecordKey, user)
		c.Locals(actorContextKey, actor)

		ctx := a.log.WithUserID(c.UserContext(), user.ID.String())
		c.SetUserContext(a.log.WithActorRole(ctx, string(user.Role)))
		return c.Next()
	}
}

func (a *Authenticator) resolve(c *fiber.Ctx) (*models.User, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid authorization header")
	}

	userID, err := a.identity.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, err
	}
	return a.identity.CurrentUser(c.UserContext(), userID)
}

// CurrentUser returns the user loaded by the authenticator.
func CurrentUser(c *fiber.Ctx) (*models.User, bool) {
	user, ok := c.Locals(userRecordKey).(*models.User)
	return user, ok && user != nil
}

// CurrentActor returns the request's actor. Anonymous requests get the zero
// Actor.
func CurrentActor(c *fiber.Ctx) policy.Actor {
	actor, _ := c.Locals(actorContextKey).(policy.Actor)
	return actor
}

// RequireRole admits only actors holding one of roles.
func RequireRole(roles ...policy.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := CurrentActor(c)
		if !actor.Authenticated() {
			return apperr.ErrUnauthenticated
		}
		for _, role := range roles {
			if actor.Role == role {
				return c.Next()
			}
		}
		return apperr.ErrForbidden
	}
}
