package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/services"
	"github.com/example/sitesnap/internal/utils"
)

// SellerHandler manages seller profiles. Creating or removing a profile
// changes the linked user's role through the role service.
type SellerHandler struct {
	db    *gorm.DB
	roles *services.RoleService
}

func NewSellerHandler(db *gorm.DB, roles *services.RoleService) *SellerHandler {
	return &SellerHandler{db: db, roles: roles}
}

// CreateSeller turns the caller into a seller.
func (h *SellerHandler) CreateSeller(c *fiber.Ctx) error {
	actor := middleware.CurrentActor(c)
	if !actor.Authenticated() {
		return apperr.ErrUnauthenticated
	}
	var input services.SellerInput
	if err := utils.BindJSON(c, &input); err != nil {
		return err
	}

	ctx := c.UserContext()
	seller, err := h.roles.PromoteToSeller(ctx, actor.UserID, input)
	if err != nil {
		return err
	}
	user, err := first[models.User](h.db.WithContext(ctx), actor.UserID, "user")
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    seller,
		"user":    user,
	})
}

// ListSellers is admin only.
func (h *SellerHandler) ListSellers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Seller{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var sellers []models.Seller
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).
		Find(&sellers).Error; err != nil {
		return err
	}
	return utils.List(c, sellers, len(sellers), total)
}

func (h *SellerHandler) GetSeller(c *fiber.Ctx) error {
	seller, err := h.target(c)
	if err != nil {
		return err
	}
	return utils.OK(c, seller)
}

type sellerUpdateRequest struct {
	Name           *string `json:"name"`
	PhoneNumber    *string `json:"phone_number"`
	WhatsappNumber *string `json:"whatsapp_number"`
	Address        *string `json:"address"`
}

func (h *SellerHandler) UpdateSeller(c *fiber.Ctx) error {
	seller, err := h.target(c)
	if err != nil {
		return err
	}
	var req sellerUpdateRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	updates := map[string]any{}
	for column, v := range map[string]*string{
		"name":            req.Name,
		"phone_number":    req.PhoneNumber,
		"whatsapp_number": req.WhatsappNumber,
		"address":         req.Address,
	} {
		if v == nil {
			continue
		}
		value := strings.TrimSpace(*v)
		if value == "" {
			return apperr.New(apperr.CodeValidation, column+" cannot be empty")
		}
		updates[column] = value
	}

	db := h.db.WithContext(c.UserContext())
	if len(updates) > 0 {
		if err := db.Model(seller).Updates(updates).Error; err != nil {
			return err
		}
	}
	updated, err := first[models.Seller](db, seller.ID, "seller")
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

// DeleteSeller removes the profile and demotes the linked user.
func (h *SellerHandler) DeleteSeller(c *fiber.Ctx) error {
	seller, err := h.target(c)
	if err != nil {
		return err
	}
	if err := h.roles.RemoveSellerProfile(c.UserContext(), seller.ID); err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "seller deleted")
}

func (h *SellerHandler) target(c *fiber.Ctx) (*models.Seller, error) {
	id, err := services.ResolveSellerTarget(middleware.CurrentActor(c), c.Params("id"))
	if err != nil {
		return nil, err
	}
	return first[models.Seller](h.db.WithContext(c.UserContext()), id, "seller")
}
