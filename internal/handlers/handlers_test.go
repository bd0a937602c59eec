package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/database/dbtest"
	"github.com/example/sitesnap/internal/logger"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/policy"
	"github.com/example/sitesnap/internal/services"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// tokenIdentity treats the bearer token as the user id.
type tokenIdentity struct{ db *gorm.DB }

func (i tokenIdentity) ParseToken(token string) (uuid.UUID, error) {
	id, err := uuid.Parse(token)
	if err != nil {
		return uuid.Nil, apperr.ErrUnauthenticated
	}
	return id, nil
}

func (i tokenIdentity) CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := i.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, err
	}
	return &user, nil
}

type fakeMedia struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
}

func (m *fakeMedia) Upload(_ context.Context, r io.Reader, name string) (models.UploadedFile, error) {
	_, _ = io.Copy(io.Discard, r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded = append(m.uploaded, name)
	id := "site-snap/" + uuid.NewString()
	return models.UploadedFile{URL: "https://cdn.example.com/" + id + ".png", PublicID: id, ResourceType: "image"}, nil
}

func (m *fakeMedia) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *fakeMedia) deletedRefs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

type harness struct {
	t       *testing.T
	db      *gorm.DB
	app     *fiber.App
	media   *fakeMedia
	cleanup *services.CleanupRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := dbtest.Open(t)
	media := &fakeMedia{}
	cleanup := services.NewCleanupRunner(media, nil, nil, nil)

	authn := middleware.NewAuthenticator(tokenIdentity{db: db}, nil)
	optional, required := authn.Optional(), authn.Required()

	products := NewProductHandler(db, media, cleanup)
	catalog := NewCatalogHandler(db)
	marketing := NewMarketingHandler(db, media, cleanup)
	sites := NewSiteHandler(db)
	businesses := NewBusinessHandler(db)
	uploads := NewUploadHandler(db, media, cleanup)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger.Nop())})
	app.Post("/products", required, products.CreateProduct)
	app.Put("/products/:id", required, products.UpdateProduct)
	app.Delete("/products/:id", required, products.DeleteProduct)
	app.Get("/categories", optional, catalog.ListCategories)
	app.Post("/categories", required, catalog.CreateCategory)
	app.Delete("/categories/:id", required, catalog.DeleteCategory)
	app.Get("/attributes", optional, catalog.ListAttributes)
	app.Post("/attributes", required, catalog.CreateAttribute)
	app.Put("/attributes/:id", required, catalog.UpdateAttribute)
	app.Post("/hero-slides", required, marketing.CreateHeroSlide)
	app.Put("/hero-slides/:id", required, marketing.UpdateHeroSlide)
	app.Delete("/hero-slides/:id", required, marketing.DeleteHeroSlide)
	app.Post("/sites", required, sites.CreateSite)
	app.Post("/businesses", required, businesses.CreateBusiness)
	app.Post("/uploads", required, uploads.Create)
	app.Get("/uploads", required, uploads.List)
	app.Delete("/uploads/:id", required, uploads.Delete)

	return &harness{t: t, db: db, app: app, media: media, cleanup: cleanup}
}

func (h *harness) user(role policy.Role, withSeller bool) *models.User {
	h.t.Helper()
	email := uuid.NewString() + "@example.com"
	user := &models.User{Email: &email, PasswordHash: "x", Role: role}
	if withSeller {
		seller := &models.Seller{Name: "Shop", PhoneNumber: "1", WhatsappNumber: "1", Address: "1"}
		require.NoError(h.t, h.db.Create(seller).Error)
		user.SellerID = &seller.ID
	}
	require.NoError(h.t, h.db.Create(user).Error)
	return user
}

func (h *harness) do(method, path string, as *models.User, body any) (int, map[string]any) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+as.ID.String())
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func dataOf(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func TestCheckFileSniffsContent(t *testing.T) {
	payload, err := checkFile("", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", payload.mime)
	assert.Equal(t, "file.png", payload.name)

	_, err = checkFile("evil.png", []byte("#!/bin/sh\necho hi\n"))
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = checkFile("empty.png", nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestDecodeInline(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	payload, err := decodeInline(inlineFile{Name: "a.png", Data: "data:image/png;base64," + encoded})
	require.NoError(t, err)
	assert.Equal(t, "a.png", payload.name)

	payload, err = decodeInline(inlineFile{Data: encoded})
	require.NoError(t, err)
	assert.Equal(t, "image/png", payload.mime)

	_, err = decodeInline(inlineFile{Data: "data:image/png," + encoded})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = decodeInline(inlineFile{Data: "%%%"})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestParseIDs(t *testing.T) {
	id := uuid.New()
	ids, err := parseIDs("ids", []string{id.String(), id.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)

	_, err = parseIDs("ids", []string{"nope"})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestUploadLifecycle(t *testing.T) {
	h := newHarness(t)
	owner := h.user(policy.RoleSeller, true)
	other := h.user(policy.RoleVisitor, false)
	encoded := base64.StdEncoding.EncodeToString(pngHeader)

	status, body := h.do(http.MethodPost, "/uploads", owner, fiber.Map{"files": []fiber.Map{{"name": "a.png", "data": encoded}, {"data": encoded}}})
	require.Equal(t, http.StatusCreated, status)
	assert.EqualValues(t, 2, body["count"])
	assert.Len(t, body["urls"], 2)
	id := dataOf(body)["id"].(string)

	status, body = h.do(http.MethodGet, "/uploads", other, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"])

	status, _ = h.do(http.MethodDelete, "/uploads/"+id, other, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(http.MethodDelete, "/uploads/"+id, owner, nil)
	require.Equal(t, http.StatusOK, status)
	h.cleanup.Wait()
	assert.Len(t, h.media.deletedRefs(), 2)
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	h := newHarness(t)
	owner := h.user(policy.RoleSeller, true)
	script := base64.StdEncoding.EncodeToString([]byte("<?php echo 1; ?>"))

	status, body := h.do(http.MethodPost, "/uploads", owner, fiber.Map{"files": []fiber.Map{{"data": script}}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["error"])
	assert.Empty(t, h.media.uploaded)

	status, _ = h.do(http.MethodPost, "/uploads", owner, fiber.Map{"files": []fiber.Map{}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProductImagesToKeep(t *testing.T) {
	h := newHarness(t)
	seller := h.user(policy.RoleSeller, true)

	status, body := h.do(http.MethodPost, "/products", seller, fiber.Map{
		"product_name": "Vase",
		"price":        "12.5",
		"images":       []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"},
	})
	require.Equal(t, http.StatusCreated, status)
	id := dataOf(body)["id"].(string)
	assert.Equal(t, "In Stock", dataOf(body)["inventory"])

	status, body = h.do(http.MethodPut, "/products/"+id, seller, fiber.Map{
		"images_to_keep": []string{"https://cdn.example.com/a.png"},
		"images":         []string{"https://cdn.example.com/c.png"},
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"https://cdn.example.com/a.png", "https://cdn.example.com/c.png"}, dataOf(body)["images"])

	h.cleanup.Wait()
	assert.Equal(t, []string{"https://cdn.example.com/b.png"}, h.media.deletedRefs())

	status, _ = h.do(http.MethodDelete, "/products/"+id, seller, nil)
	require.Equal(t, http.StatusOK, status)
	h.cleanup.Wait()
	assert.Len(t, h.media.deletedRefs(), 3)
}

func TestHeroSlideImageReplacement(t *testing.T) {
	h := newHarness(t)
	seller := h.user(policy.RoleSeller, false)

	status, body := h.do(http.MethodPost, "/hero-slides", seller, fiber.Map{"tagline": "Hi", "image": "https://cdn.example.com/old.png"})
	require.Equal(t, http.StatusCreated, status)
	id := dataOf(body)["id"].(string)

	status, body = h.do(http.MethodPut, "/hero-slides/"+id, seller, fiber.Map{
		"file": fiber.Map{"name": "new.png", "data": base64.StdEncoding.EncodeToString(pngHeader)},
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEqual(t, "https://cdn.example.com/old.png", dataOf(body)["image"])
	assert.Equal(t, "Hi", dataOf(body)["tagline"])

	h.cleanup.Wait()
	assert.Equal(t, []string{"https://cdn.example.com/old.png"}, h.media.deletedRefs())

	status, _ = h.do(http.MethodPost, "/hero-slides", seller, fiber.Map{"tagline": "No image"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAttributeScopingFollowsProducts(t *testing.T) {
	h := newHarness(t)
	sellerA := h.user(policy.RoleSeller, true)
	sellerB := h.user(policy.RoleSeller, true)

	status, body := h.do(http.MethodPost, "/attributes", sellerA, fiber.Map{"attribute_name": "Size", "options": []string{"S", "M", "S"}})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, []any{"S", "M"}, dataOf(body)["options"])
	claimed := dataOf(body)["id"].(string)

	status, body = h.do(http.MethodPost, "/attributes", sellerB, fiber.Map{"attribute_name": "Colour"})
	require.Equal(t, http.StatusCreated, status)
	free := dataOf(body)["id"].(string)

	status, _ = h.do(http.MethodPost, "/products", sellerA, fiber.Map{"product_name": "Shirt", "price": 5, "attribute_ids": []string{claimed}})
	require.Equal(t, http.StatusCreated, status)

	status, body = h.do(http.MethodGet, "/attributes", sellerB, nil)
	require.Equal(t, http.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, free, items[0].(map[string]any)["id"])

	status, _ = h.do(http.MethodPut, "/attributes/"+claimed, sellerB, fiber.Map{"attribute_name": "Mine"})
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = h.do(http.MethodPut, "/attributes/"+free, sellerB, fiber.Map{"attribute_name": "Color"})
	assert.Equal(t, http.StatusOK, status)

	status, body = h.do(http.MethodGet, "/attributes", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 2)
}

func TestCategoryDeleteDetachesProducts(t *testing.T) {
	h := newHarness(t)
	seller := h.user(policy.RoleSeller, true)

	status, body := h.do(http.MethodPost, "/categories", seller, fiber.Map{"category_name": "Lights"})
	require.Equal(t, http.StatusCreated, status)
	categoryID := dataOf(body)["id"].(string)

	status, _ = h.do(http.MethodPost, "/categories", seller, fiber.Map{"category_name": "Lights"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = h.do(http.MethodPost, "/products", seller, fiber.Map{"product_name": "Lamp", "price": 3, "category_id": categoryID})
	require.Equal(t, http.StatusCreated, status)
	productID := dataOf(body)["id"].(string)

	status, _ = h.do(http.MethodDelete, "/categories/"+categoryID, seller, nil)
	require.Equal(t, http.StatusOK, status)

	var product models.Product
	require.NoError(t, h.db.First(&product, "id = ?", productID).Error)
	assert.Nil(t, product.CategoryID)
}

func TestSiteRejectsForeignProducts(t *testing.T) {
	h := newHarness(t)
	sellerA := h.user(policy.RoleSeller, true)
	sellerB := h.user(policy.RoleSeller, true)

	status, body := h.do(http.MethodPost, "/products", sellerA, fiber.Map{"product_name": "Lamp", "price": 3})
	require.Equal(t, http.StatusCreated, status)
	productID := dataOf(body)["id"].(string)

	status, _ = h.do(http.MethodPost, "/sites", sellerB, fiber.Map{"site_name": "B", "product_ids": []string{productID}})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(http.MethodPost, "/sites", sellerA, fiber.Map{"site_name": "A", "product_ids": []string{productID}})
	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, dataOf(body)["products"], 1)

	status, _ = h.do(http.MethodPost, "/sites", sellerA, fiber.Map{"site_name": "A", "product_ids": []string{uuid.NewString()}})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestProductCannotClaimForeignAttribute(t *testing.T) {
	h := newHarness(t)
	sellerA := h.user(policy.RoleSeller, true)
	sellerB := h.user(policy.RoleSeller, true)
	admin := h.user(policy.RoleAdmin, false)

	status, body := h.do(http.MethodPost, "/attributes", sellerA, fiber.Map{"attribute_name": "Size"})
	require.Equal(t, http.StatusCreated, status)
	attrID := dataOf(body)["id"].(string)
	status, _ = h.do(http.MethodPost, "/products", sellerA, fiber.Map{"product_name": "Shirt", "price": 5, "attribute_ids": []string{attrID}})
	require.Equal(t, http.StatusCreated, status)

	status, _ = h.do(http.MethodPost, "/products", sellerB, fiber.Map{"product_name": "Hat", "price": 5, "attribute_ids": []string{attrID}})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(http.MethodPost, "/products", sellerB, fiber.Map{"product_name": "Hat", "price": 5})
	require.Equal(t, http.StatusCreated, status)
	hatID := dataOf(body)["id"].(string)
	status, _ = h.do(http.MethodPut, "/products/"+hatID, sellerB, fiber.Map{"attribute_ids": []string{attrID}})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = h.do(http.MethodPut, "/attributes/"+attrID, sellerB, fiber.Map{"attribute_name": "hijacked"})
	assert.Equal(t, http.StatusForbidden, status)

	var attr models.Attribute
	require.NoError(t, h.db.First(&attr, "id = ?", attrID).Error)
	assert.Equal(t, "Size", attr.AttributeName)

	status, _ = h.do(http.MethodPut, "/products/"+hatID, admin, fiber.Map{"attribute_ids": []string{attrID}})
	assert.Equal(t, http.StatusOK, status)
}

func TestProductRejectsForeignCategory(t *testing.T) {
	h := newHarness(t)
	sellerA := h.user(policy.RoleSeller, true)
	sellerB := h.user(policy.RoleSeller, true)

	status, body := h.do(http.MethodPost, "/categories", sellerA, fiber.Map{"category_name": "Lights"})
	require.Equal(t, http.StatusCreated, status)
	categoryID := dataOf(body)["id"].(string)

	status, _ = h.do(http.MethodPost, "/products", sellerB, fiber.Map{"product_name": "Lamp", "price": 3, "category_id": categoryID})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = h.do(http.MethodPost, "/products", sellerB, fiber.Map{"product_name": "Lamp", "price": 3})
	require.Equal(t, http.StatusCreated, status)
	productID := dataOf(body)["id"].(string)
	status, _ = h.do(http.MethodPut, "/products/"+productID, sellerB, fiber.Map{"category_id": categoryID})
	assert.Equal(t, http.StatusForbidden, status)

	var product models.Product
	require.NoError(t, h.db.First(&product, "id = ?", productID).Error)
	assert.Nil(t, product.CategoryID)
}

func TestOwnerMustBeAnExistingSeller(t *testing.T) {
	h := newHarness(t)
	admin := h.user(policy.RoleAdmin, false)
	seller := h.user(policy.RoleSeller, true)
	ghost := uuid.NewString()

	status, body := h.do(http.MethodPost, "/products", admin, fiber.Map{"product_name": "Lamp", "price": 3, "seller_id": ghost})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown seller_id", body["message"])

	status, _ = h.do(http.MethodPost, "/categories", admin, fiber.Map{"category_name": "Lights", "seller_id": ghost})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = h.do(http.MethodPost, "/businesses", admin, fiber.Map{"business_name": "Shop", "seller_id": ghost})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = h.do(http.MethodPost, "/products", admin, fiber.Map{"product_name": "Lamp", "price": 3, "seller_id": seller.SellerID.String()})
	require.Equal(t, http.StatusCreated, status)
	productID := dataOf(body)["id"].(string)

	status, _ = h.do(http.MethodPut, "/products/"+productID, admin, fiber.Map{"seller_id": ghost})
	assert.Equal(t, http.StatusBadRequest, status)

	var count int64
	require.NoError(t, h.db.Model(&models.Product{}).Where("seller_id = ?", ghost).Count(&count).Error)
	assert.Zero(t, count)
}
