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

var siteJoins = []string{"site_hero_slides", "site_products", "site_stories", "site_categories"}

// SiteHandler manages site details. A site belongs to the sellers whose
// businesses point at it.
type SiteHandler struct {
	db *gorm.DB
}

func NewSiteHandler(db *gorm.DB) *SiteHandler {
	return &SiteHandler{db: db}
}

func siteOwners(db *gorm.DB, id uuid.UUID) ([]uuid.UUID, error) {
	var owners []uuid.UUID
	err := db.Model(&models.Business{}).
		Where("site_id = ?", id).
		Distinct().
		Pluck("seller_id", &owners).Error
	return owners, err
}

func preloadSite(db *gorm.DB) *gorm.DB {
	return db.Preload("HeroSlides").Preload("Products").Preload("Stories").Preload("Categories")
}

func (h *SiteHandler) ListSites(c *fiber.Ctx) error {
	dec, err := authorize(c, policy.ResourceSite, policy.OpList, nil)
	if err != nil {
		return err
	}
	pg := utils.ParsePagination(c)
	db := h.db.WithContext(c.UserContext())
	query := db.Model(&models.Site{})

	if dec.Scope != nil {
		owned := db.Model(&models.Business{}).Select("site_id").Where("seller_id = ?", *dec.Scope)
		if dec.IncludeUnclaimed {
			linked := db.Model(&models.Business{}).Select("site_id").Where("site_id IS NOT NULL")
			query = query.Where("id IN (?) OR id NOT IN (?)", owned, linked)
		} else {
			query = query.Where("id IN (?)", owned)
		}
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("LOWER(site_name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var sites []models.Site
	if err := preloadSite(query).Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).Find(&sites).Error; err != nil {
		return err
	}
	return utils.List(c, sites, len(sites), total)
}

func (h *SiteHandler) GetSite(c *fiber.Ctx) error {
	site, err := h.authorized(c, policy.OpRead)
	if err != nil {
		return err
	}
	return utils.OK(c, site)
}

type siteRequest struct {
	SiteName     *string   `json:"site_name"`
	SiteTagline  *string   `json:"site_tagline"`
	SiteURL      *string   `json:"site_url" validate:"omitempty,url"`
	HeroSlideIDs *[]string `json:"hero_slide_ids"`
	ProductIDs   *[]string `json:"product_ids"`
	StoryIDs     *[]string `json:"story_ids"`
	CategoryIDs  *[]string `json:"category_ids"`
}

// siteRefs holds the resolved reference sets of a request. A nil slice means
// the set was not supplied.
type siteRefs struct {
	heroSlides []models.HeroSlide
	products   []models.Product
	stories    []models.Story
	categories []models.Category
}

func (h *SiteHandler) CreateSite(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceSite, policy.OpCreate, nil); err != nil {
		return err
	}
	var req siteRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if req.SiteName == nil || strings.TrimSpace(*req.SiteName) == "" {
		return apperr.New(apperr.CodeValidation, "site_name is required")
	}

	db := h.db.WithContext(c.UserContext())
	refs, err := h.resolveRefs(c, db, req)
	if err != nil {
		return err
	}
	site := models.Site{
		SiteName:   strings.TrimSpace(*req.SiteName),
		HeroSlides: refs.heroSlides,
		Products:   refs.products,
		Stories:    refs.stories,
		Categories: refs.categories,
	}
	if req.SiteTagline != nil {
		site.SiteTagline = *req.SiteTagline
	}
	if req.SiteURL != nil {
		site.SiteURL = strings.TrimSpace(*req.SiteURL)
	}

	if err := db.Omit("HeroSlides.*", "Products.*", "Stories.*", "Categories.*").Create(&site).Error; err != nil {
		return err
	}
	created, err := first[models.Site](preloadSite(db), site.ID, "site")
	if err != nil {
		return err
	}
	return utils.Created(c, created)
}

// UpdateSite changes fields and replaces any reference set supplied.
func (h *SiteHandler) UpdateSite(c *fiber.Ctx) error {
	site, err := h.authorized(c, policy.OpUpdate)
	if err != nil {
		return err
	}
	var req siteRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	refs, err := h.resolveRefs(c, db, req)
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if req.SiteName != nil {
		name := strings.TrimSpace(*req.SiteName)
		if name == "" {
			return apperr.New(apperr.CodeValidation, "site_name cannot be empty")
		}
		updates["site_name"] = name
	}
	if req.SiteTagline != nil {
		updates["site_tagline"] = *req.SiteTagline
	}
	if req.SiteURL != nil {
		updates["site_url"] = strings.TrimSpace(*req.SiteURL)
	}

	target := &models.Site{}
	target.ID = site.ID
	err = db.Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(target).Updates(updates).Error; err != nil {
				return err
			}
		}
		if refs.heroSlides != nil {
			if err := tx.Model(target).Association("HeroSlides").Replace(refs.heroSlides); err != nil {
				return err
			}
		}
		if refs.products != nil {
			if err := tx.Model(target).Association("Products").Replace(refs.products); err != nil {
				return err
			}
		}
		if refs.stories != nil {
			if err := tx.Model(target).Association("Stories").Replace(refs.stories); err != nil {
				return err
			}
		}
		if refs.categories != nil {
			return tx.Model(target).Association("Categories").Replace(refs.categories)
		}
		return nil
	})
	if err != nil {
		return err
	}

	updated, err := first[models.Site](preloadSite(db), site.ID, "site")
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

// DeleteSite removes the site, its reference sets and any business links.
func (h *SiteHandler) DeleteSite(c *fiber.Ctx) error {
	site, err := h.authorized(c, policy.OpDelete)
	if err != nil {
		return err
	}
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		for _, join := range siteJoins {
			if err := tx.Exec("DELETE FROM "+join+" WHERE site_id = ?", site.ID).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&models.Business{}).Where("site_id = ?", site.ID).
			UpdateColumn("site_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Site{}, "id = ?", site.ID).Error
	})
	if err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "site deleted")
}

type heroSlideLinkRequest struct {
	HeroSlideIDs []string `json:"hero_slide_ids"`
	HeroSlideID  string   `json:"hero_slide_id"`
}

// AddHeroSlides links hero slides to a site, keeping existing links.
func (h *SiteHandler) AddHeroSlides(c *fiber.Ctx) error {
	site, err := h.authorized(c, policy.OpUpdate)
	if err != nil {
		return err
	}
	var req heroSlideLinkRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	raw := req.HeroSlideIDs
	if req.HeroSlideID != "" {
		raw = append(raw, req.HeroSlideID)
	}
	if len(raw) == 0 {
		return apperr.New(apperr.CodeValidation, "hero_slide_ids is required")
	}

	db := h.db.WithContext(c.UserContext())
	ids, err := parseIDs("hero_slide_ids", raw)
	if err != nil {
		return err
	}
	slides, err := loadByIDs[models.HeroSlide](db, ids, "hero slide")
	if err != nil {
		return err
	}

	target := &models.Site{}
	target.ID = site.ID
	if err := db.Model(target).Association("HeroSlides").Append(slides); err != nil {
		return err
	}
	updated, err := first[models.Site](preloadSite(db), site.ID, "site")
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

// RemoveHeroSlide unlinks one hero slide from a site. The slide itself stays.
func (h *SiteHandler) RemoveHeroSlide(c *fiber.Ctx) error {
	site, err := h.authorized(c, policy.OpUpdate)
	if err != nil {
		return err
	}
	slideID, err := utils.ParamUUID(c, "heroSlideId")
	if err != nil {
		return err
	}

	db := h.db.WithContext(c.UserContext())
	if err := db.Exec("DELETE FROM site_hero_slides WHERE site_id = ? AND hero_slide_id = ?",
		site.ID, slideID).Error; err != nil {
		return err
	}
	updated, err := first[models.Site](preloadSite(db), site.ID, "site")
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

func (h *SiteHandler) authorized(c *fiber.Ctx, op policy.Operation) (*models.Site, error) {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return nil, err
	}
	db := h.db.WithContext(c.UserContext())

	site, err := first[models.Site](preloadSite(db), id, "site")
	if err != nil {
		return nil, err
	}
	owners, err := siteOwners(db, id)
	if err != nil {
		return nil, err
	}
	if _, err := authorizeClaim(c, policy.ResourceSite, op, owners); err != nil {
		return nil, err
	}
	return site, nil
}

// resolveRefs loads every supplied reference set. Sellers may only place
// their own products and categories on a site.
func (h *SiteHandler) resolveRefs(c *fiber.Ctx, db *gorm.DB, req siteRequest) (siteRefs, error) {
	var refs siteRefs
	var err error
	actor := middleware.CurrentActor(c)

	if req.HeroSlideIDs != nil {
		if refs.heroSlides, err = loadRefs[models.HeroSlide](db, "hero_slide_ids", *req.HeroSlideIDs, "hero slide"); err != nil {
			return refs, err
		}
	}
	if req.StoryIDs != nil {
		if refs.stories, err = loadRefs[models.Story](db, "story_ids", *req.StoryIDs, "story"); err != nil {
			return refs, err
		}
	}
	if req.ProductIDs != nil {
		if refs.products, err = loadRefs[models.Product](db, "product_ids", *req.ProductIDs, "product"); err != nil {
			return refs, err
		}
		for i := range refs.products {
			if !actor.IsAdmin() && !actor.Owns(&refs.products[i].SellerID) {
				return refs, apperr.ErrOwnershipViolation
			}
		}
	}
	if req.CategoryIDs != nil {
		if refs.categories, err = loadRefs[models.Category](db, "category_ids", *req.CategoryIDs, "category"); err != nil {
			return refs, err
		}
		for i := range refs.categories {
			if !actor.IsAdmin() && !actor.Owns(&refs.categories[i].SellerID) {
				return refs, apperr.ErrOwnershipViolation
			}
		}
	}
	return refs, nil
}

func loadRefs[T any](db *gorm.DB, field string, raw []string, what string) ([]T, error) {
	ids, err := parseIDs(field, raw)
	if err != nil {
		return nil, err
	}
	return loadByIDs[T](db, ids, what)
}
