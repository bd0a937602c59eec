package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
	"github.com/example/sitesnap/internal/utils"
)

// AnalyticsHandler manages per-business traffic counters. Records belong to
// the seller that owns the business.
type AnalyticsHandler struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAnalyticsHandler(db *gorm.DB) *AnalyticsHandler {
	return &AnalyticsHandler{db: db, now: time.Now}
}

func (h *AnalyticsHandler) ListAnalytics(c *fiber.Ctx) error {
	dec, err := authorize(c, policy.ResourceAnalytics, policy.OpList, nil)
	if err != nil {
		return err
	}
	pg := utils.ParsePagination(c)
	db := h.db.WithContext(c.UserContext())
	query := db.Model(&models.Analytics{})

	if dec.Scope != nil {
		owned := db.Model(&models.Business{}).Select("id").Where("seller_id = ?", *dec.Scope)
		query = query.Where("business_id IN (?)", owned)
	}
	if v := c.Query("business_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("business_id = ?", id)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var items []models.Analytics
	if err := query.Preload("Products").Order("date desc").
		Limit(pg.Limit).Offset(pg.Offset).Find(&items).Error; err != nil {
		return err
	}
	return utils.List(c, items, len(items), total)
}

func (h *AnalyticsHandler) GetAnalytics(c *fiber.Ctx) error {
	record, err := h.authorized(c, policy.OpRead)
	if err != nil {
		return err
	}
	return utils.OK(c, record)
}

// ListByBusiness returns every record of a business the caller may read.
func (h *AnalyticsHandler) ListByBusiness(c *fiber.Ctx) error {
	businessID, err := utils.ParamUUID(c, "businessId")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	business, err := first[models.Business](db, businessID, "business")
	if err != nil {
		return err
	}
	if _, err := authorize(c, policy.ResourceAnalytics, policy.OpRead, &business.SellerID); err != nil {
		return err
	}

	var items []models.Analytics
	if err := db.Preload("Products").Where("business_id = ?", businessID).
		Order("date desc").Find(&items).Error; err != nil {
		return err
	}
	return utils.List(c, items, len(items), int64(len(items)))
}

type analyticsRequest struct {
	BusinessID *string   `json:"business_id"`
	ProductIDs *[]string `json:"product_ids"`
	Date       *string   `json:"date"`
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.New(apperr.CodeValidation, "date must be RFC3339 or YYYY-MM-DD")
}

func (h *AnalyticsHandler) CreateAnalytics(c *fiber.Ctx) error {
	var req analyticsRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if req.BusinessID == nil || *req.BusinessID == "" {
		return apperr.New(apperr.CodeValidation, "business_id is required")
	}
	businessID, err := uuid.Parse(*req.BusinessID)
	if err != nil {
		return apperr.New(apperr.CodeValidation, "business_id must be a valid id")
	}

	db := h.db.WithContext(c.UserContext())
	business, err := first[models.Business](db, businessID, "business")
	if err != nil {
		return err
	}
	if _, err := authorize(c, policy.ResourceAnalytics, policy.OpCreate, &business.SellerID); err != nil {
		return err
	}

	record := models.Analytics{BusinessID: business.ID, Date: h.now().UTC()}
	if req.Date != nil && *req.Date != "" {
		if record.Date, err = parseDate(*req.Date); err != nil {
			return err
		}
	}
	if req.ProductIDs != nil {
		if record.Products, err = trackedProducts(c, db, *req.ProductIDs); err != nil {
			return err
		}
	}

	if err := db.Omit("Business", "Products.*").Create(&record).Error; err != nil {
		return err
	}
	created, err := first[models.Analytics](db.Preload("Products"), record.ID, "analytics")
	if err != nil {
		return err
	}
	return utils.Created(c, created)
}

// UpdateAnalytics changes the date or product set. Counters only move
// through the increment routes.
func (h *AnalyticsHandler) UpdateAnalytics(c *fiber.Ctx) error {
	record, err := h.authorized(c, policy.OpUpdate)
	if err != nil {
		return err
	}
	var req analyticsRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if req.BusinessID != nil && *req.BusinessID != record.BusinessID.String() {
		return apperr.New(apperr.CodeValidation, "business_id cannot be changed")
	}

	db := h.db.WithContext(c.UserContext())
	var products []models.Product
	if req.ProductIDs != nil {
		if products, err = trackedProducts(c, db, *req.ProductIDs); err != nil {
			return err
		}
	}

	target := &models.Analytics{}
	target.ID = record.ID
	err = db.Transaction(func(tx *gorm.DB) error {
		if req.Date != nil && *req.Date != "" {
			date, err := parseDate(*req.Date)
			if err != nil {
				return err
			}
			if err := tx.Model(target).Update("date", date).Error; err != nil {
				return err
			}
		}
		if req.ProductIDs != nil {
			return tx.Model(target).Association("Products").Replace(products)
		}
		return nil
	})
	if err != nil {
		return err
	}

	updated, err := first[models.Analytics](db.Preload("Products"), record.ID, "analytics")
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

func (h *AnalyticsHandler) DeleteAnalytics(c *fiber.Ctx) error {
	record, err := h.authorized(c, policy.OpDelete)
	if err != nil {
		return err
	}
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM analytics_products WHERE analytics_id = ?", record.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Analytics{}, "id = ?", record.ID).Error
	})
	if err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "analytics deleted")
}

// IncrementViews counts a storefront view. It is public.
func (h *AnalyticsHandler) IncrementViews(c *fiber.Ctx) error {
	return h.increment(c, "views")
}

// IncrementClicks counts a storefront click. It is public.
func (h *AnalyticsHandler) IncrementClicks(c *fiber.Ctx) error {
	return h.increment(c, "clicks")
}

func (h *AnalyticsHandler) increment(c *fiber.Ctx, column string) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	res := db.Model(&models.Analytics{}).Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "analytics not found")
	}

	var value int64
	if err := db.Model(&models.Analytics{}).Where("id = ?", id).Pluck(column, &value).Error; err != nil {
		return err
	}
	return utils.OK(c, fiber.Map{"id": id, column: value})
}

func (h *AnalyticsHandler) authorized(c *fiber.Ctx, op policy.Operation) (*models.Analytics, error) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	db := h.db.WithContext(c.UserContext())

	record, err := first[models.Analytics](db.Preload("Business").Preload("Products"), id, "analytics")
	if err != nil {
		return nil, err
	}
	var owners []uuid.UUID
	if record.Business != nil {
		owners = append(owners, record.Business.SellerID)
	}
	if _, err := authorizeClaim(c, policy.ResourceAnalytics, op, owners); err != nil {
		return nil, err
	}
	return record, nil
}

// trackedProducts loads the products a record tracks. Sellers may only track
// products they own.
func trackedProducts(c *fiber.Ctx, db *gorm.DB, raw []string) ([]models.Product, error) {
	products, err := loadRefs[models.Product](db, "product_ids", raw, "product")
	if err != nil {
		return nil, err
	}
	actor := middleware.CurrentActor(c)
	if actor.IsAdmin() {
		return products, nil
	}
	for i := range products {
		if !actor.Owns(&products[i].SellerID) {
			return nil, apperr.ErrOwnershipViolation
		}
	}
	return products, nil
}
