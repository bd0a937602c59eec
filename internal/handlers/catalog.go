package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
	"github.com/example/sitesnap/internal/utils"
)

// CatalogHandler manages categories and attributes.
type CatalogHandler struct {
	db *gorm.DB
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db}
}

// Categories

// ListCategories returns categories; sellers see only their own.
func (h *CatalogHandler) ListCategories(c *fiber.Ctx) error {
	dec, err := authorize(c, policy.ResourceCategory, policy.OpList, nil)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Category{})
	if dec.Scope != nil {
		query = query.Where("seller_id = ?", *dec.Scope)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var categories []models.Category
	if err := query.Limit(pg.Limit).Offset(pg.Offset).Order("created_at desc").
		Find(&categories).Error; err != nil {
		return err
	}

	return utils.List(c, categories, len(categories), total)
}

// GetCategory returns a single category by ID.
func (h *CatalogHandler) GetCategory(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}

	category, err := first[models.Category](h.db.WithContext(c.UserContext()), id, "category")
	if err != nil {
		return err
	}
	if _, err := authorize(c, policy.ResourceCategory, policy.OpRead, &category.SellerID); err != nil {
		return err
	}

	return utils.OK(c, category)
}

type categoryRequest struct {
	CategoryName string `json:"category_name"`
	SellerID     string `json:"seller_id"`
}

// CreateCategory persists a new category.
func (h *CatalogHandler) CreateCategory(c *fiber.Ctx) error {
	var req categoryRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.CategoryName)
	if name == "" {
		return apperr.New(apperr.CodeValidation, "category_name is required")
	}

	owner, err := parseOwner(h.db.WithContext(c.UserContext()), req.SellerID)
	if err != nil {
		return err
	}
	dec, err := authorize(c, policy.ResourceCategory, policy.OpCreate, owner)
	if err != nil {
		return err
	}

	category := models.Category{CategoryName: name, SellerID: *dec.Owner}
	if err := h.db.WithContext(c.UserContext()).Create(&category).Error; err != nil {
		return err
	}

	return utils.Created(c, category)
}

// UpdateCategory renames a category. Only admins may move it to another seller.
func (h *CatalogHandler) UpdateCategory(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	category, err := first[models.Category](db, id, "category")
	if err != nil {
		return err
	}
	if _, err := authorize(c, policy.ResourceCategory, policy.OpUpdate, &category.SellerID); err != nil {
		return err
	}

	var req categoryRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	updates := map[string]any{}
	if name := strings.TrimSpace(req.CategoryName); name != "" {
		updates["category_name"] = name
	}
	owner, err := parseOwner(h.db.WithContext(c.UserContext()), req.SellerID)
	if err != nil {
		return err
	}
	if owner != nil && *owner != category.SellerID {
		if !middleware.CurrentActor(c).IsAdmin() {
			return apperr.ErrOwnershipViolation
		}
		updates["seller_id"] = *owner
	}

	if len(updates) > 0 {
		if err := db.Model(category).Updates(updates).Error; err != nil {
			return err
		}
		if category, err = first[models.Category](db, id, "category"); err != nil {
			return err
		}
	}
	return utils.OK(c, category)
}

// DeleteCategory removes a category and unlinks it from products and sites.
func (h *CatalogHandler) DeleteCategory(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	category, err := first[models.Category](db, id, "category")
	if err != nil {
		return err
	}
	if _, err := authorize(c, policy.ResourceCategory, policy.OpDelete, &category.SellerID); err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Product{}).Where("category_id = ?", id).
			UpdateColumn("category_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM site_categories WHERE category_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Category{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "category deleted")
}

// Attributes

// attributeOwners returns the sellers whose products use the attribute.
func attributeOwners(db *gorm.DB, id uuid.UUID) ([]uuid.UUID, error) {
	var owners []uuid.UUID
	err := db.Model(&models.Product{}).
		Joins("JOIN product_attributes ON product_attributes.product_id = products.id").
		Where("product_attributes.attribute_id = ?", id).
		Distinct().
		Pluck("products.seller_id", &owners).Error
	return owners, err
}

// ListAttributes returns attributes. Sellers see the ones their products use
// plus any no product uses yet.
func (h *CatalogHandler) ListAttributes(c *fiber.Ctx) error {
	dec, err := authorize(c, policy.ResourceAttribute, policy.OpList, nil)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	db := h.db.WithContext(c.UserContext())
	query := db.Model(&models.Attribute{})

	if dec.Scope != nil {
		owned := db.Table("product_attributes").
			Select("product_attributes.attribute_id").
			Joins("JOIN products ON products.id = product_attributes.product_id").
			Where("products.seller_id = ?", *dec.Scope)
		if dec.IncludeUnclaimed {
			linked := db.Table("product_attributes").Select("attribute_id")
			query = query.Where("id IN (?) OR id NOT IN (?)", owned, linked)
		} else {
			query = query.Where("id IN (?)", owned)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var attributes []models.Attribute
	if err := query.Limit(pg.Limit).Offset(pg.Offset).Order("created_at desc").
		Find(&attributes).Error; err != nil {
		return err
	}

	return utils.List(c, attributes, len(attributes), total)
}

func (h *CatalogHandler) GetAttribute(c *fiber.Ctx) error {
	attribute, err := h.authorizedAttribute(c, policy.OpRead)
	if err != nil {
		return err
	}
	return utils.OK(c, attribute)
}

type attributeRequest struct {
	AttributeName *string   `json:"attribute_name"`
	Options       *[]string `json:"options"`
}

func (h *CatalogHandler) CreateAttribute(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceAttribute, policy.OpCreate, nil); err != nil {
		return err
	}

	var req attributeRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if req.AttributeName == nil || strings.TrimSpace(*req.AttributeName) == "" {
		return apperr.New(apperr.CodeValidation, "attribute_name is required")
	}

	attribute := models.Attribute{AttributeName: strings.TrimSpace(*req.AttributeName)}
	if req.Options != nil {
		attribute.Options = dedupe(*req.Options)
	}
	if err := h.db.WithContext(c.UserContext()).Create(&attribute).Error; err != nil {
		return err
	}
	return utils.Created(c, attribute)
}

func (h *CatalogHandler) UpdateAttribute(c *fiber.Ctx) error {
	attribute, err := h.authorizedAttribute(c, policy.OpUpdate)
	if err != nil {
		return err
	}

	var req attributeRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	if req.AttributeName != nil {
		name := strings.TrimSpace(*req.AttributeName)
		if name == "" {
			return apperr.New(apperr.CodeValidation, "attribute_name cannot be empty")
		}
		attribute.AttributeName = name
	}
	if req.Options != nil {
		attribute.Options = dedupe(*req.Options)
	}
	if err := h.db.WithContext(c.UserContext()).
		Select("attribute_name", "options", "updated_at").
		Save(attribute).Error; err != nil {
		return err
	}
	return utils.OK(c, attribute)
}

func (h *CatalogHandler) DeleteAttribute(c *fiber.Ctx) error {
	attribute, err := h.authorizedAttribute(c, policy.OpDelete)
	if err != nil {
		return err
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM product_attributes WHERE attribute_id = ?", attribute.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Attribute{}, "id = ?", attribute.ID).Error
	})
	if err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "attribute deleted")
}

func (h *CatalogHandler) authorizedAttribute(c *fiber.Ctx, op policy.Operation) (*models.Attribute, error) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	db := h.db.WithContext(c.UserContext())

	attribute, err := first[models.Attribute](db, id, "attribute")
	if err != nil {
		return nil, err
	}
	owners, err := attributeOwners(db, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeClaim(c, policy.ResourceAttribute, op, owners); err != nil {
		return nil, err
	}
	return attribute, nil
}
