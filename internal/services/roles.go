package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
)

// SellerInput is the profile a user supplies when becoming a seller.
type SellerInput struct {
	Name           string `json:"name" validate:"required"`
	PhoneNumber    string `json:"phone_number" validate:"required"`
	WhatsappNumber string `json:"whatsapp_number" validate:"required"`
	Address        string `json:"address" validate:"required"`
}

// RoleService owns every change to a user's role and seller link. Each
// change runs in one transaction so a user never points at a missing
// seller and no seller is left without its user.
type RoleService struct {
	tx database.TxRunner
}

func NewRoleService(tx database.TxRunner) *RoleService {
	return &RoleService{tx: tx}
}

func lockUser(tx *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// PromoteToSeller creates the seller profile and links it to the user,
// upgrading a visitor to seller.
func (s *RoleService) PromoteToSeller(ctx context.Context, userID uuid.UUID, input SellerInput) (*models.Seller, error) {
	var seller *models.Seller
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.SellerID != nil {
			return apperr.ErrAlreadyHasSellerProfile
		}
		if user.Role == policy.RoleAdmin {
			return apperr.ErrRoleNotEligible
		}

		seller = &models.Seller{
			Name:           strings.TrimSpace(input.Name),
			PhoneNumber:    strings.TrimSpace(input.PhoneNumber),
			WhatsappNumber: strings.TrimSpace(input.WhatsappNumber),
			Address:        strings.TrimSpace(input.Address),
		}
		if err := tx.Create(seller).Error; err != nil {
			return err
		}

		updates := map[string]any{"seller_id": seller.ID}
		if user.Role == policy.RoleVisitor {
			updates["role"] = policy.RoleSeller
		}
		res := tx.Model(&models.User{}).
			Where("id = ? AND seller_id IS NULL", user.ID).
			UpdateColumns(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrAlreadyHasSellerProfile
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seller, nil
}

// DemoteFromSeller removes the user's seller profile and returns a seller to
// visitor.
func (s *RoleService) DemoteFromSeller(ctx context.Context, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := lockUser(tx, userID)
		if err != nil {
			return err
		}
		return demote(tx, user)
	})
}

// RemoveSellerProfile deletes a seller by id, demoting the linked user if
// there is one.
func (s *RoleService) RemoveSellerProfile(ctx context.Context, sellerID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var user models.User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("seller_id = ?", sellerID).First(&user).Error
		switch {
		case err == nil:
			return demote(tx, &user)
		case database.IsNotFound(err):
		default:
			return err
		}

		res := tx.Delete(&models.Seller{}, "id = ?", sellerID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
}

func demote(tx *gorm.DB, user *models.User) error {
	if user.SellerID == nil {
		return apperr.ErrNoSellerProfile
	}
	sellerID := *user.SellerID

	updates := map[string]any{"seller_id": nil}
	if user.Role == policy.RoleSeller {
		updates["role"] = policy.RoleVisitor
	}
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumns(updates).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Seller{}, "id = ?", sellerID).Error
}

// ChangeRole sets a user's role. Admins cannot move themselves off admin.
func (s *RoleService) ChangeRole(ctx context.Context, actor policy.Actor, targetID uuid.UUID, role policy.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperr.New(apperr.CodeValidation, "role must be visitor, seller or admin")
	}
	if actor.UserID == targetID && actor.Role == policy.RoleAdmin && role != policy.RoleAdmin {
		return nil, apperr.ErrSelfRoleChange
	}

	var user *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		user, err = lockUser(tx, targetID)
		if err != nil {
			return err
		}
		if err := tx.Model(user).UpdateColumn("role", role).Error; err != nil {
			return err
		}
		user.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes an account and its seller profile. Nobody can delete
// their own account.
func (s *RoleService) DeleteUser(ctx context.Context, actor policy.Actor, targetID uuid.UUID) error {
	if actor.UserID == targetID {
		return apperr.ErrSelfDelete
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := lockUser(tx, targetID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
			return err
		}
		if user.SellerID != nil {
			return tx.Delete(&models.Seller{}, "id = ?", *user.SellerID).Error
		}
		return nil
	})
}

// ResolveSellerTarget maps a seller id path segment to a seller id the actor
// may act on. "me" is the actor's own profile.
func ResolveSellerTarget(actor policy.Actor, raw string) (uuid.UUID, error) {
	if !actor.Authenticated() {
		return uuid.Nil, apperr.ErrUnauthenticated
	}
	if strings.EqualFold(raw, "me") {
		if actor.SellerID == nil {
			return uuid.Nil, apperr.ErrNoSellerProfile
		}
		return *actor.SellerID, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.CodeValidation, "invalid seller id")
	}
	if actor.IsAdmin() || actor.Owns(&id) {
		return id, nil
	}
	return uuid.Nil, apperr.ErrForbidden
}
