package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
	"github.com/example/sitesnap/internal/services"
	"github.com/example/sitesnap/internal/utils"
)

// ProductHandler manages product CRUD.
type ProductHandler struct {
	db *gorm.DB
	uploader
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(db *gorm.DB, media services.MediaHost, cleanup *services.CleanupRunner) *ProductHandler {
	return &ProductHandler{db: db, uploader: uploader{media: media, cleanup: cleanup}}
}

// ListProducts returns products visible to the caller with optional filters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	dec, err := authorize(c, policy.ResourceProduct, policy.OpList, nil)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Product{})

	if dec.Scope != nil {
		query = query.Where("seller_id = ?", *dec.Scope)
	}
	if dec.PublicOnly {
		query = query.Where("is_visible = ?", true)
	} else if v := c.Query("is_visible"); v != "" {
		query = query.Where("is_visible = ?", v == "true")
	}

	if v := c.Query("category_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("category_id = ?", id)
		}
	}

	if v := c.Query("seller_id"); v != "" && dec.Scope == nil {
		if id, err := uuid.Parse(v); err == nil {
			query = query.Where("seller_id = ?", id)
		}
	}

	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(product_name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Preload("Category").Preload("Attributes").
		Limit(pg.Limit).Offset(pg.Offset).
		Order("created_at desc").
		Find(&products).Error; err != nil {
		return err
	}

	return utils.List(c, products, len(products), total)
}

// GetProduct loads a product and counts the visit.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	product, err := h.load(db, id)
	if err != nil {
		return err
	}

	dec, err := authorize(c, policy.ResourceProduct, policy.OpRead, &product.SellerID)
	if err != nil {
		return err
	}
	if dec.PublicOnly && !product.IsVisible {
		return apperr.New(apperr.CodeNotFound, "product not found")
	}

	// Owners browsing their own catalog are not visitors.
	if !middleware.CurrentActor(c).Owns(&product.SellerID) {
		if err := db.Model(&models.Product{}).Where("id = ?", id).
			UpdateColumn("visits", gorm.Expr("visits + ?", 1)).Error; err != nil {
			return err
		}
		product.Visits++
	}

	return utils.OK(c, product)
}

// IncrementRedirect counts a click-through to the seller.
func (h *ProductHandler) IncrementRedirect(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	res := db.Model(&models.Product{}).Where("id = ?", id).
		UpdateColumn("redirects", gorm.Expr("redirects + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.CodeNotFound, "product not found")
	}

	var redirects int64
	if err := db.Model(&models.Product{}).Where("id = ?", id).Pluck("redirects", &redirects).Error; err != nil {
		return err
	}
	return utils.OK(c, fiber.Map{"id": id, "redirects": redirects})
}

type productRequest struct {
	ProductName        *string          `json:"product_name"`
	ProductDescription *string          `json:"product_description"`
	Price              *decimal.Decimal `json:"price"`
	IsVisible          *bool            `json:"is_visible"`
	Inventory          *string          `json:"inventory"`
	CategoryID         *string          `json:"category_id"`
	SellerID           string           `json:"seller_id"`
	AttributeIDs       *[]string        `json:"attribute_ids"`
	Images             []string         `json:"images"`
	ImagesToKeep       *[]string        `json:"images_to_keep"`
	Files              []inlineFile     `json:"files"`
}

func (r productRequest) validate(creating bool) error {
	if creating && (r.ProductName == nil || strings.TrimSpace(*r.ProductName) == "") {
		return apperr.New(apperr.CodeValidation, "product_name is required")
	}
	if r.ProductName != nil && strings.TrimSpace(*r.ProductName) == "" {
		return apperr.New(apperr.CodeValidation, "product_name cannot be empty")
	}
	if creating && r.Price == nil {
		return apperr.New(apperr.CodeValidation, "price is required")
	}
	if r.Price != nil && r.Price.IsNegative() {
		return apperr.New(apperr.CodeValidation, "price must not be negative")
	}
	return nil
}

// CreateProduct handles product creation.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req productRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if err := req.validate(true); err != nil {
		return err
	}

	owner, err := parseOwner(h.db.WithContext(c.UserContext()), req.SellerID)
	if err != nil {
		return err
	}
	dec, err := authorize(c, policy.ResourceProduct, policy.OpCreate, owner)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	product := models.Product{
		ProductName: strings.TrimSpace(*req.ProductName),
		Price:       *req.Price,
		IsVisible:   true,
		Inventory:   models.DefaultInventory,
		SellerID:    *dec.Owner,
	}
	if req.ProductDescription != nil {
		product.ProductDescription = *req.ProductDescription
	}
	if req.IsVisible != nil {
		product.IsVisible = *req.IsVisible
	}
	if req.Inventory != nil && strings.TrimSpace(*req.Inventory) != "" {
		product.Inventory = strings.TrimSpace(*req.Inventory)
	}
	if product.CategoryID, err = h.category(c, db, req.CategoryID); err != nil {
		return err
	}
	if req.AttributeIDs != nil {
		if product.Attributes, err = h.attributes(c, db, *req.AttributeIDs); err != nil {
			return err
		}
	}

	uploadedURLs, uploaded, err := h.pushInline(ctx, "product.create_failed", req.Files)
	if err != nil {
		return err
	}
	product.Images = dedupe(append(uploadedURLs, req.Images...))

	if err := db.Omit("Attributes.*").Create(&product).Error; err != nil {
		h.discard(ctx, "product.create_failed", uploaded)
		return err
	}

	created, err := h.load(db, product.ID)
	if err != nil {
		return err
	}
	return utils.Created(c, created)
}

// UpdateProduct applies a partial update. images_to_keep selects which
// existing images survive; the rest are removed from the media host.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	existing, err := first[models.Product](db, id, "product")
	if err != nil {
		return err
	}
	if _, err := authorize(c, policy.ResourceProduct, policy.OpUpdate, &existing.SellerID); err != nil {
		return err
	}

	var req productRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if err := req.validate(false); err != nil {
		return err
	}

	updates := map[string]any{}
	if req.ProductName != nil {
		updates["product_name"] = strings.TrimSpace(*req.ProductName)
	}
	if req.ProductDescription != nil {
		updates["product_description"] = *req.ProductDescription
	}
	if req.Price != nil {
		updates["price"] = *req.Price
	}
	if req.IsVisible != nil {
		updates["is_visible"] = *req.IsVisible
	}
	if req.Inventory != nil {
		updates["inventory"] = strings.TrimSpace(*req.Inventory)
	}
	if req.CategoryID != nil {
		categoryID, err := h.category(c, db, req.CategoryID)
		if err != nil {
			return err
		}
		updates["category_id"] = categoryID
	}

	owner, err := parseOwner(h.db.WithContext(c.UserContext()), req.SellerID)
	if err != nil {
		return err
	}
	if owner != nil && *owner != existing.SellerID {
		if !middleware.CurrentActor(c).IsAdmin() {
			return apperr.ErrOwnershipViolation
		}
		updates["seller_id"] = *owner
	}

	var attrs []models.Attribute
	if req.AttributeIDs != nil {
		if attrs, err = h.attributes(c, db, *req.AttributeIDs); err != nil {
			return err
		}
	}

	uploadedURLs, uploaded, err := h.pushInline(ctx, "product.update_failed", req.Files)
	if err != nil {
		return err
	}

	var dropped []string
	if req.ImagesToKeep != nil || len(req.Images) > 0 || len(uploadedURLs) > 0 {
		keep := []string(existing.Images)
		if req.ImagesToKeep != nil {
			keep, dropped = partition(existing.Images, *req.ImagesToKeep)
		}
		images := dedupe(append(append(keep, req.Images...), uploadedURLs...))
		updates["images"] = datatypes.JSONSlice[string](images)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Product{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}
		if req.AttributeIDs != nil {
			return tx.Model(existing).Association("Attributes").Replace(attrs)
		}
		return nil
	})
	if err != nil {
		h.discard(ctx, "product.update_failed", uploaded)
		return err
	}

	h.cleanup.DeleteAssets(ctx, "product.images_replaced", dropped...)

	updated, err := h.load(db, id)
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

// DeleteProduct removes a product and its images.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	product, err := first[models.Product](db, id, "product")
	if err != nil {
		return err
	}
	if _, err := authorize(c, policy.ResourceProduct, policy.OpDelete, &product.SellerID); err != nil {
		return err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		for _, join := range []string{"product_attributes", "site_products", "analytics_products"} {
			if err := tx.Exec("DELETE FROM "+join+" WHERE product_id = ?", id).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Product{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	h.cleanup.DeleteAssets(ctx, "product.delete", product.Images...)
	return utils.Message(c, fiber.StatusOK, "product deleted")
}

func (h *ProductHandler) load(db *gorm.DB, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := db.Preload("Category").Preload("Attributes").First(&product, "id = ?", id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.New(apperr.CodeNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

// category resolves category_id. Sellers may only file products under their
// own categories.
func (h *ProductHandler) category(c *fiber.Ctx, db *gorm.DB, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, apperr.New(apperr.CodeValidation, "category_id must be a valid id")
	}
	category, err := first[models.Category](db, id, "category")
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.New(apperr.CodeValidation, "unknown category id")
		}
		return nil, err
	}
	actor := middleware.CurrentActor(c)
	if !actor.IsAdmin() && !actor.Owns(&category.SellerID) {
		return nil, apperr.ErrOwnershipViolation
	}
	return &id, nil
}

// attributes resolves attribute_ids. Linking an attribute claims it, so an
// attribute already used by another seller's products is off limits.
func (h *ProductHandler) attributes(c *fiber.Ctx, db *gorm.DB, raw []string) ([]models.Attribute, error) {
	ids, err := parseIDs("attribute_ids", raw)
	if err != nil {
		return nil, err
	}
	attrs, err := loadByIDs[models.Attribute](db, ids, "attribute")
	if err != nil {
		return nil, err
	}
	for i := range attrs {
		owners, err := attributeOwners(db, attrs[i].ID)
		if err != nil {
			return nil, err
		}
		if _, err := authorizeClaim(c, policy.ResourceAttribute, policy.OpUpdate, owners); err != nil {
			return nil, err
		}
	}
	return attrs, nil
}

// partition splits current into the images listed in keep and the rest.
func partition(current, keep []string) (kept, dropped []string) {
	wanted := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		wanted[k] = struct{}{}
	}
	for _, img := range current {
		if _, ok := wanted[img]; ok {
			kept = append(kept, img)
		} else {
			dropped = append(dropped, img)
		}
	}
	return kept, dropped
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
