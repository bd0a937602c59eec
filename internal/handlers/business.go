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
	"github.com/example/sitesnap/internal/services"
	"github.com/example/sitesnap/internal/utils"
)

// BusinessHandler manages storefront businesses.
type BusinessHandler struct {
	db *gorm.DB
}

func NewBusinessHandler(db *gorm.DB) *BusinessHandler {
	return &BusinessHandler{db: db}
}

func (h *BusinessHandler) ListBusinesses(c *fiber.Ctx) error {
	dec, err := authorize(c, policy.ResourceBusiness, policy.OpList, nil)
	if err != nil {
		return err
	}
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Business{})
	if dec.Scope != nil {
		query = query.Where("seller_id = ?", *dec.Scope)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(business_name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var items []models.Business
	if err := query.Preload("Site").Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).Find(&items).Error; err != nil {
		return err
	}
	return utils.List(c, items, len(items), total)
}

// ListBySeller returns the businesses of one seller. "me" is the caller's
// own seller profile.
func (h *BusinessHandler) ListBySeller(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceBusiness, policy.OpList, nil); err != nil {
		return err
	}
	sellerID, err := services.ResolveSellerTarget(middleware.CurrentActor(c), c.Params("sellerId"))
	if err != nil {
		return err
	}

	var items []models.Business
	if err := h.db.WithContext(c.UserContext()).Preload("Site").
		Where("seller_id = ?", sellerID).Order("created_at desc").
		Find(&items).Error; err != nil {
		return err
	}
	return utils.List(c, items, len(items), int64(len(items)))
}

func (h *BusinessHandler) GetBusiness(c *fiber.Ctx) error {
	business, err := h.authorized(c, policy.OpRead)
	if err != nil {
		return err
	}
	return utils.OK(c, business)
}

type businessRequest struct {
	BusinessName     *string `json:"business_name"`
	BusinessTagline  *string `json:"business_tagline"`
	BusinessEmailAdd *string `json:"business_email_add" validate:"omitempty,email"`
	SiteID           *string `json:"site_id"`
	SellerID         string  `json:"seller_id"`
	TemplateID       *int    `json:"template_id" validate:"omitempty,min=1"`
}

func (h *BusinessHandler) CreateBusiness(c *fiber.Ctx) error {
	var req businessRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	owner, err := parseOwner(h.db.WithContext(c.UserContext()), req.SellerID)
	if err != nil {
		return err
	}
	dec, err := authorize(c, policy.ResourceBusiness, policy.OpCreate, owner)
	if err != nil {
		return err
	}
	if req.BusinessName == nil || strings.TrimSpace(*req.BusinessName) == "" {
		return apperr.New(apperr.CodeValidation, "business_name is required")
	}

	db := h.db.WithContext(c.UserContext())
	business := models.Business{
		BusinessName: strings.TrimSpace(*req.BusinessName),
		SellerID:     *dec.Owner,
		TemplateID:   1,
	}
	if req.BusinessTagline != nil {
		business.BusinessTagline = *req.BusinessTagline
	}
	if req.BusinessEmailAdd != nil {
		business.BusinessEmailAdd = strings.TrimSpace(*req.BusinessEmailAdd)
	}
	if req.TemplateID != nil {
		business.TemplateID = *req.TemplateID
	}
	if req.SiteID != nil && *req.SiteID != "" {
		siteID, err := h.linkableSite(c, db, *req.SiteID)
		if err != nil {
			return err
		}
		business.SiteID = &siteID
	}

	if err := db.Create(&business).Error; err != nil {
		return err
	}
	return utils.Created(c, business)
}

func (h *BusinessHandler) UpdateBusiness(c *fiber.Ctx) error {
	business, err := h.authorized(c, policy.OpUpdate)
	if err != nil {
		return err
	}
	var req businessRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	updates := map[string]any{}
	if req.BusinessName != nil {
		name := strings.TrimSpace(*req.BusinessName)
		if name == "" {
			return apperr.New(apperr.CodeValidation, "business_name cannot be empty")
		}
		updates["business_name"] = name
	}
	if req.BusinessTagline != nil {
		updates["business_tagline"] = *req.BusinessTagline
	}
	if req.BusinessEmailAdd != nil {
		updates["business_email_add"] = strings.TrimSpace(*req.BusinessEmailAdd)
	}
	if req.TemplateID != nil {
		updates["template_id"] = *req.TemplateID
	}
	if req.SiteID != nil {
		if *req.SiteID == "" {
			updates["site_id"] = nil
		} else {
			siteID, err := h.linkableSite(c, db, *req.SiteID)
			if err != nil {
				return err
			}
			updates["site_id"] = siteID
		}
	}
	if req.SellerID != "" {
		owner, err := parseOwner(h.db.WithContext(c.UserContext()), req.SellerID)
		if err != nil {
			return err
		}
		if *owner != business.SellerID {
			if !middleware.CurrentActor(c).IsAdmin() {
				return apperr.ErrOwnershipViolation
			}
			updates["seller_id"] = *owner
		}
	}

	if len(updates) > 0 {
		if err := db.Model(business).Updates(updates).Error; err != nil {
			return err
		}
	}
	updated, err := first[models.Business](db.Preload("Site"), business.ID, "business")
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

// DeleteBusiness removes the business and the analytics recorded for it.
func (h *BusinessHandler) DeleteBusiness(c *fiber.Ctx) error {
	business, err := h.authorized(c, policy.OpDelete)
	if err != nil {
		return err
	}
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			"DELETE FROM analytics_products WHERE analytics_id IN (SELECT id FROM analytics WHERE business_id = ?)",
			business.ID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Analytics{}, "business_id = ?", business.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Business{}, "id = ?", business.ID).Error
	})
	if err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "business deleted")
}

func (h *BusinessHandler) authorized(c *fiber.Ctx, op policy.Operation) (*models.Business, error) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	business, err := first[models.Business](h.db.WithContext(c.UserContext()).Preload("Site"), id, "business")
	if err != nil {
		return nil, err
	}
	if _, err := authorize(c, policy.ResourceBusiness, op, &business.SellerID); err != nil {
		return nil, err
	}
	return business, nil
}

// linkableSite checks that raw names a site the caller may attach to a
// business.
func (h *BusinessHandler) linkableSite(c *fiber.Ctx, db *gorm.DB, raw string) (uuid.UUID, error) {
	siteID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.CodeValidation, "site_id must be a valid id")
	}
	if _, err := first[models.Site](db, siteID, "site"); err != nil {
		return uuid.Nil, err
	}
	owners, err := siteOwners(db, siteID)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := authorizeClaim(c, policy.ResourceSite, policy.OpUpdate, owners); err != nil {
		return uuid.Nil, err
	}
	return siteID, nil
}
