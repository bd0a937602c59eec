package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
	"github.com/example/sitesnap/internal/services"
	"github.com/example/sitesnap/internal/utils"
)

// AdminHandler manages admin-only user endpoints.
type AdminHandler struct {
	db    *gorm.DB
	roles *services.RoleService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB, roles *services.RoleService) *AdminHandler {
	return &AdminHandler{db: db, roles: roles}
}

// ListUsers returns users with optional role and search filters.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.User{})

	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR phone LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var users []models.User
	if err := query.Preload("Seller").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&users).Error; err != nil {
		return err
	}

	return utils.List(c, users, len(users), total)
}

func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	user, err := first[models.User](h.db.WithContext(c.UserContext()).Preload("Seller"), id, "user")
	if err != nil {
		return err
	}
	return utils.OK(c, user)
}

type roleRequest struct {
	Role policy.Role `json:"role" validate:"required"`
}

// UpdateUserRole sets a user's role. Admins cannot demote themselves.
func (h *AdminHandler) UpdateUserRole(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req roleRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	user, err := h.roles.ChangeRole(c.UserContext(), middleware.CurrentActor(c), id, req.Role)
	if err != nil {
		return err
	}
	return utils.OK(c, user)
}

// DeleteUser removes an account and its seller profile.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.roles.DeleteUser(c.UserContext(), middleware.CurrentActor(c), id); err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "user deleted")
}
