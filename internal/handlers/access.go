package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
)

func authorize(c *fiber.Ctx, res policy.Resource, op policy.Operation, owner *uuid.UUID) (policy.Decision, error) {
	return policy.Evaluate(policy.Request{
		Actor:     middleware.CurrentActor(c),
		Operation: op,
		Resource:  res,
		OwnerID:   owner,
	})
}

// authorizeClaim checks an operation on a record whose owners are derived
// through links. owners empty means nothing links to it yet.
func authorizeClaim(c *fiber.Ctx, res policy.Resource, op policy.Operation, owners []uuid.UUID) (policy.Decision, error) {
	actor := middleware.CurrentActor(c)
	req := policy.Request{Actor: actor, Operation: op, Resource: res}
	if len(owners) == 0 {
		req.Unclaimed = true
	} else {
		req.OwnerID = &owners[0]
		for i := range owners {
			if actor.Owns(&owners[i]) {
				req.OwnerID = &owners[i]
				break
			}
		}
	}
	return policy.Evaluate(req)
}

// parseOwner reads an optional seller id supplied in a request body. The
// seller must exist.
func parseOwner(db *gorm.DB, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.New(apperr.CodeValidation, "seller_id must be a valid id")
	}
	if _, err := first[models.Seller](db, id, "seller"); err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.New(apperr.CodeValidation, "unknown seller_id")
		}
		return nil, err
	}
	return &id, nil
}

func parseIDs(field string, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]struct{}, len(raw))
	for _, v := range raw {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, apperr.New(apperr.CodeValidation, field+" must contain valid ids")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadByIDs fetches every record in ids into dest, failing when any is missing.
func loadByIDs[T any](db *gorm.DB, ids []uuid.UUID, what string) ([]T, error) {
	out := []T{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := db.Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) != len(ids) {
		return nil, apperr.New(apperr.CodeValidation, "unknown "+what+" id")
	}
	return out, nil
}

func first[T any](db *gorm.DB, id uuid.UUID, what string) (*T, error) {
	var item T
	if err := db.First(&item, "id = ?", id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.New(apperr.CodeNotFound, what+" not found")
		}
		return nil, err
	}
	return &item, nil
}
