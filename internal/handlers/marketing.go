package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
	"github.com/example/sitesnap/internal/services"
	"github.com/example/sitesnap/internal/utils"
)

// MarketingHandler manages hero slides, stories and story cards. None of
// them has an owner: any seller or admin may manage them.
type MarketingHandler struct {
	db *gorm.DB
	uploader
}

// NewMarketingHandler constructs MarketingHandler.
func NewMarketingHandler(db *gorm.DB, media services.MediaHost, cleanup *services.CleanupRunner) *MarketingHandler {
	return &MarketingHandler{db: db, uploader: uploader{media: media, cleanup: cleanup}}
}

// image resolves the image for a create or update: an inline file wins over
// a URL. It returns the stored files so a failed write can discard them.
func (h *MarketingHandler) image(ctx context.Context, reason, url string, file *inlineFile) (string, []models.UploadedFile, error) {
	if file == nil || file.Data == "" {
		return strings.TrimSpace(url), nil, nil
	}
	urls, stored, err := h.pushInline(ctx, reason, []inlineFile{*file})
	if err != nil {
		return "", nil, err
	}
	return urls[0], stored, nil
}

// Hero slides

func (h *MarketingHandler) ListHeroSlides(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceHeroSlide, policy.OpList, nil); err != nil {
		return err
	}
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.HeroSlide{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var items []models.HeroSlide
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&items).Error; err != nil {
		return err
	}
	return utils.List(c, items, len(items), total)
}

func (h *MarketingHandler) GetHeroSlide(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceHeroSlide, policy.OpRead, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	item, err := first[models.HeroSlide](h.db.WithContext(c.UserContext()), id, "hero slide")
	if err != nil {
		return err
	}
	return utils.OK(c, item)
}

type heroSlideRequest struct {
	Tagline *string     `json:"tagline"`
	Image   string      `json:"image"`
	File    *inlineFile `json:"file"`
}

func (h *MarketingHandler) CreateHeroSlide(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceHeroSlide, policy.OpCreate, nil); err != nil {
		return err
	}
	var req heroSlideRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	image, stored, err := h.image(ctx, "hero_slide.create_failed", req.Image, req.File)
	if err != nil {
		return err
	}
	if image == "" {
		return apperr.New(apperr.CodeValidation, "image is required")
	}

	item := models.HeroSlide{Image: image}
	if req.Tagline != nil {
		item.Tagline = strings.TrimSpace(*req.Tagline)
	}
	if err := h.db.WithContext(ctx).Create(&item).Error; err != nil {
		h.discard(ctx, "hero_slide.create_failed", stored)
		return err
	}
	return utils.Created(c, item)
}

// UpdateHeroSlide replaces fields; a replaced image is removed from the host.
func (h *MarketingHandler) UpdateHeroSlide(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceHeroSlide, policy.OpUpdate, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	item, err := first[models.HeroSlide](db, id, "hero slide")
	if err != nil {
		return err
	}
	var req heroSlideRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	image, stored, err := h.image(ctx, "hero_slide.update_failed", req.Image, req.File)
	if err != nil {
		return err
	}
	previous := item.Image
	if image != "" {
		item.Image = image
	}
	if req.Tagline != nil {
		item.Tagline = strings.TrimSpace(*req.Tagline)
	}
	if err := db.Select("tagline", "image", "updated_at").Save(item).Error; err != nil {
		h.discard(ctx, "hero_slide.update_failed", stored)
		return err
	}

	if previous != item.Image {
		h.cleanup.DeleteAssets(ctx, "hero_slide.image_replaced", previous)
	}
	return utils.OK(c, item)
}

func (h *MarketingHandler) DeleteHeroSlide(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceHeroSlide, policy.OpDelete, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	item, err := first[models.HeroSlide](db, id, "hero slide")
	if err != nil {
		return err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM site_hero_slides WHERE hero_slide_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.HeroSlide{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	h.cleanup.DeleteAssets(ctx, "hero_slide.delete", item.Image)
	return utils.Message(c, fiber.StatusOK, "hero slide deleted")
}

// Stories

func (h *MarketingHandler) ListStories(c *fiber.Ctx) error {
	dec, err := authorize(c, policy.ResourceStory, policy.OpList, nil)
	if err != nil {
		return err
	}
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.Story{})
	if dec.PublicOnly {
		query = query.Where("is_visible = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var items []models.Story
	if err := query.Preload("StoryCards").Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).Find(&items).Error; err != nil {
		return err
	}
	return utils.List(c, items, len(items), total)
}

func (h *MarketingHandler) GetStory(c *fiber.Ctx) error {
	dec, err := authorize(c, policy.ResourceStory, policy.OpRead, nil)
	if err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	story, err := h.loadStory(h.db.WithContext(c.UserContext()), id)
	if err != nil {
		return err
	}
	if dec.PublicOnly && !story.IsVisible {
		return apperr.New(apperr.CodeNotFound, "story not found")
	}
	return utils.OK(c, story)
}

type storyRequest struct {
	StoryTitle   *string   `json:"story_title"`
	IsVisible    *bool     `json:"is_visible"`
	StoryCardIDs *[]string `json:"story_card_ids"`
}

func (h *MarketingHandler) CreateStory(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStory, policy.OpCreate, nil); err != nil {
		return err
	}
	var req storyRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if req.StoryTitle == nil || strings.TrimSpace(*req.StoryTitle) == "" {
		return apperr.New(apperr.CodeValidation, "story_title is required")
	}

	db := h.db.WithContext(c.UserContext())
	story := models.Story{StoryTitle: strings.TrimSpace(*req.StoryTitle), IsVisible: true}
	if req.IsVisible != nil {
		story.IsVisible = *req.IsVisible
	}
	if req.StoryCardIDs != nil {
		cards, err := h.storyCards(db, *req.StoryCardIDs)
		if err != nil {
			return err
		}
		story.StoryCards = cards
	}

	if err := db.Omit("StoryCards.*").Create(&story).Error; err != nil {
		return err
	}
	return utils.Created(c, story)
}

func (h *MarketingHandler) UpdateStory(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStory, policy.OpUpdate, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	story, err := first[models.Story](db, id, "story")
	if err != nil {
		return err
	}
	var req storyRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	if req.StoryTitle != nil {
		title := strings.TrimSpace(*req.StoryTitle)
		if title == "" {
			return apperr.New(apperr.CodeValidation, "story_title cannot be empty")
		}
		story.StoryTitle = title
	}
	if req.IsVisible != nil {
		story.IsVisible = *req.IsVisible
	}
	var cards []models.StoryCard
	if req.StoryCardIDs != nil {
		if cards, err = h.storyCards(db, *req.StoryCardIDs); err != nil {
			return err
		}
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("story_title", "is_visible", "updated_at").Save(story).Error; err != nil {
			return err
		}
		if req.StoryCardIDs != nil {
			return tx.Model(story).Association("StoryCards").Replace(cards)
		}
		return nil
	})
	if err != nil {
		return err
	}

	updated, err := h.loadStory(db, id)
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

func (h *MarketingHandler) DeleteStory(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStory, policy.OpDelete, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	if _, err := first[models.Story](db, id, "story"); err != nil {
		return err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM story_story_cards WHERE story_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM site_stories WHERE story_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Story{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "story deleted")
}

type storyCardLinkRequest struct {
	StoryCardIDs []string `json:"story_card_ids"`
	StoryCardID  string   `json:"story_card_id"`
}

// AddStoryCards links story cards to a story. Already linked cards are kept.
func (h *MarketingHandler) AddStoryCards(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStory, policy.OpUpdate, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	story, err := first[models.Story](db, id, "story")
	if err != nil {
		return err
	}
	var req storyCardLinkRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	raw := req.StoryCardIDs
	if req.StoryCardID != "" {
		raw = append(raw, req.StoryCardID)
	}
	if len(raw) == 0 {
		return apperr.New(apperr.CodeValidation, "story_card_ids is required")
	}
	cards, err := h.storyCards(db, raw)
	if err != nil {
		return err
	}

	if err := db.Model(story).Association("StoryCards").Append(cards); err != nil {
		return err
	}
	updated, err := h.loadStory(db, id)
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

// RemoveStoryCard unlinks one story card from a story.
func (h *MarketingHandler) RemoveStoryCard(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStory, policy.OpUpdate, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	cardID, err := utils.ParamUUID(c, "storyCardId")
	if err != nil {
		return err
	}
	db := h.db.WithContext(c.UserContext())

	story, err := first[models.Story](db, id, "story")
	if err != nil {
		return err
	}
	card := models.StoryCard{}
	card.ID = cardID
	if err := db.Model(story).Association("StoryCards").Delete(&card); err != nil {
		return err
	}
	updated, err := h.loadStory(db, id)
	if err != nil {
		return err
	}
	return utils.OK(c, updated)
}

func (h *MarketingHandler) loadStory(db *gorm.DB, id uuid.UUID) (*models.Story, error) {
	var story models.Story
	if err := db.Preload("StoryCards").First(&story, "id = ?", id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.New(apperr.CodeNotFound, "story not found")
		}
		return nil, err
	}
	return &story, nil
}

func (h *MarketingHandler) storyCards(db *gorm.DB, raw []string) ([]models.StoryCard, error) {
	ids, err := parseIDs("story_card_ids", raw)
	if err != nil {
		return nil, err
	}
	return loadByIDs[models.StoryCard](db, ids, "story card")
}

// Story cards

func (h *MarketingHandler) ListStoryCards(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStoryCard, policy.OpList, nil); err != nil {
		return err
	}
	pg := utils.ParsePagination(c)
	query := h.db.WithContext(c.UserContext()).Model(&models.StoryCard{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var items []models.StoryCard
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&items).Error; err != nil {
		return err
	}
	return utils.List(c, items, len(items), total)
}

func (h *MarketingHandler) GetStoryCard(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStoryCard, policy.OpRead, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	item, err := first[models.StoryCard](h.db.WithContext(c.UserContext()), id, "story card")
	if err != nil {
		return err
	}
	return utils.OK(c, item)
}

type storyCardRequest struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Image       string      `json:"image"`
	File        *inlineFile `json:"file"`
}

func (h *MarketingHandler) CreateStoryCard(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStoryCard, policy.OpCreate, nil); err != nil {
		return err
	}
	var req storyCardRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return apperr.New(apperr.CodeValidation, "title is required")
	}

	ctx := c.UserContext()
	image, stored, err := h.image(ctx, "story_card.create_failed", req.Image, req.File)
	if err != nil {
		return err
	}
	item := models.StoryCard{Title: strings.TrimSpace(*req.Title), Image: image}
	if req.Description != nil {
		item.Description = *req.Description
	}
	if err := h.db.WithContext(ctx).Create(&item).Error; err != nil {
		h.discard(ctx, "story_card.create_failed", stored)
		return err
	}
	return utils.Created(c, item)
}

func (h *MarketingHandler) UpdateStoryCard(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStoryCard, policy.OpUpdate, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	item, err := first[models.StoryCard](db, id, "story card")
	if err != nil {
		return err
	}
	var req storyCardRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	image, stored, err := h.image(ctx, "story_card.update_failed", req.Image, req.File)
	if err != nil {
		return err
	}
	previous := item.Image
	if image != "" {
		item.Image = image
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			h.discard(ctx, "story_card.update_failed", stored)
			return apperr.New(apperr.CodeValidation, "title cannot be empty")
		}
		item.Title = title
	}
	if req.Description != nil {
		item.Description = *req.Description
	}
	if err := db.Select("title", "description", "image", "updated_at").Save(item).Error; err != nil {
		h.discard(ctx, "story_card.update_failed", stored)
		return err
	}

	if previous != item.Image {
		h.cleanup.DeleteAssets(ctx, "story_card.image_replaced", previous)
	}
	return utils.OK(c, item)
}

func (h *MarketingHandler) DeleteStoryCard(c *fiber.Ctx) error {
	if _, err := authorize(c, policy.ResourceStoryCard, policy.OpDelete, nil); err != nil {
		return err
	}
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	db := h.db.WithContext(ctx)

	item, err := first[models.StoryCard](db, id, "story card")
	if err != nil {
		return err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM story_story_cards WHERE story_card_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.StoryCard{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	h.cleanup.DeleteAssets(ctx, "story_card.delete", item.Image)
	return utils.Message(c, fiber.StatusOK, "story card deleted")
}
