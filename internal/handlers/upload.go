package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/services"
	"github.com/example/sitesnap/internal/utils"
)

const (
	maxUploadFiles = 10
	maxUploadBytes = 10 << 20
)

var allowedMIME = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/webm":      true,
}

// inlineFile is a file sent inside a JSON body, either as a data URL or as
// bare base64.
type inlineFile struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type filePayload struct {
	name string
	mime string
	data []byte
}

func decodeInline(f inlineFile) (filePayload, error) {
	raw := strings.TrimSpace(f.Data)
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 || !strings.Contains(raw[:comma], ";base64") {
			return filePayload{}, apperr.New(apperr.CodeValidation, "file data must be base64 encoded")
		}
		raw = raw[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(raw)) > maxUploadBytes+3 {
		return filePayload{}, apperr.New(apperr.CodeValidation, "file exceeds 10MB")
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return filePayload{}, apperr.New(apperr.CodeValidation, "file data must be base64 encoded")
	}
	return checkFile(f.Name, data)
}

func readMultipart(fh *multipart.FileHeader) (filePayload, error) {
	if fh.Size > maxUploadBytes {
		return filePayload{}, apperr.New(apperr.CodeValidation, "file exceeds 10MB")
	}
	file, err := fh.Open()
	if err != nil {
		return filePayload{}, apperr.Wrap(apperr.CodeValidation, err, "unreadable file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return filePayload{}, apperr.Wrap(apperr.CodeValidation, err, "unreadable file")
	}
	return checkFile(fh.Filename, data)
}

// checkFile sniffs the content type; the client's claim is ignored.
func checkFile(name string, data []byte) (filePayload, error) {
	if len(data) == 0 {
		return filePayload{}, apperr.New(apperr.CodeValidation, "file is empty")
	}
	if len(data) > maxUploadBytes {
		return filePayload{}, apperr.New(apperr.CodeValidation, "file exceeds 10MB")
	}
	detected := mimetype.Detect(data)
	kind := strings.TrimSpace(strings.SplitN(detected.String(), ";", 2)[0])
	if !allowedMIME[kind] {
		return filePayload{}, apperr.New(apperr.CodeValidation, "file type "+kind+" is not allowed")
	}
	if name == "" {
		name = "file" + detected.Extension()
	}
	return filePayload{name: name, mime: kind, data: data}, nil
}

// uploader pushes files to the media host. A batch either lands completely or
// the pieces already stored are scheduled for deletion.
type uploader struct {
	media   services.MediaHost
	cleanup *services.CleanupRunner
}

func (u uploader) push(ctx context.Context, reason string, files []filePayload) ([]models.UploadedFile, error) {
	out := make([]models.UploadedFile, 0, len(files))
	for _, f := range files {
		stored, err := u.media.Upload(ctx, bytes.NewReader(f.data), f.name)
		if err != nil {
			u.discard(ctx, reason, out)
			if apperr.As(err) != nil {
				return nil, err
			}
			return nil, apperr.Wrap(apperr.CodeDependency, err, "upload failed")
		}
		out = append(out, stored)
	}
	return out, nil
}

func (u uploader) pushInline(ctx context.Context, reason string, inline []inlineFile) ([]string, []models.UploadedFile, error) {
	if len(inline) == 0 {
		return nil, nil, nil
	}
	if len(inline) > maxUploadFiles {
		return nil, nil, apperr.New(apperr.CodeValidation, "at most 10 files per request")
	}
	files := make([]filePayload, 0, len(inline))
	for _, f := range inline {
		payload, err := decodeInline(f)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, payload)
	}
	stored, err := u.push(ctx, reason, files)
	if err != nil {
		return nil, nil, err
	}
	return urlsOf(stored), stored, nil
}

func (u uploader) discard(ctx context.Context, reason string, files []models.UploadedFile) {
	refs := make([]string, 0, len(files))
	for _, f := range files {
		if f.PublicID != "" {
			refs = append(refs, f.PublicID)
		} else {
			refs = append(refs, f.URL)
		}
	}
	u.cleanup.DeleteAssets(ctx, reason, refs...)
}

func urlsOf(files []models.UploadedFile) []string {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, f.URL)
	}
	return urls
}

// UploadHandler stores files on the media host and records each batch.
type UploadHandler struct {
	db *gorm.DB
	uploader
}

// NewUploadHandler constructs UploadHandler.
func NewUploadHandler(db *gorm.DB, media services.MediaHost, cleanup *services.CleanupRunner) *UploadHandler {
	return &UploadHandler{db: db, uploader: uploader{media: media, cleanup: cleanup}}
}

type uploadRequest struct {
	Files []inlineFile `json:"files"`
}

// Create accepts multipart field "files" or a JSON body of base64 files.
func (h *UploadHandler) Create(c *fiber.Ctx) error {
	actor := middleware.CurrentActor(c)
	ctx := c.UserContext()

	var files []filePayload
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperr.Wrap(apperr.CodeValidation, err, "invalid multipart body")
		}
		headers := form.File["files"]
		if len(headers) > maxUploadFiles {
			return apperr.New(apperr.CodeValidation, "at most 10 files per request")
		}
		for _, fh := range headers {
			payload, err := readMultipart(fh)
			if err != nil {
				return err
			}
			files = append(files, payload)
		}
	} else {
		var req uploadRequest
		if err := utils.BindJSON(c, &req); err != nil {
			return err
		}
		if len(req.Files) > maxUploadFiles {
			return apperr.New(apperr.CodeValidation, "at most 10 files per request")
		}
		for _, f := range req.Files {
			payload, err := decodeInline(f)
			if err != nil {
				return err
			}
			files = append(files, payload)
		}
	}
	if len(files) == 0 {
		return apperr.New(apperr.CodeValidation, "no files provided")
	}

	stored, err := h.push(ctx, "upload.create_failed", files)
	if err != nil {
		return err
	}

	record := models.Upload{Files: stored, UploadedBy: actor.UserID}
	if err := h.db.WithContext(ctx).Create(&record).Error; err != nil {
		h.discard(ctx, "upload.create_failed", stored)
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"count":   len(stored),
		"data":    record,
		"urls":    urlsOf(stored),
	})
}

// List returns the caller's uploads; admins see every upload.
func (h *UploadHandler) List(c *fiber.Ctx) error {
	actor := middleware.CurrentActor(c)
	pg := utils.ParsePagination(c)

	query := h.db.WithContext(c.UserContext()).Model(&models.Upload{})
	if !actor.IsAdmin() {
		query = query.Where("uploaded_by = ?", actor.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}
	var items []models.Upload
	if err := query.Order("created_at desc").Limit(pg.Limit).Offset(pg.Offset).Find(&items).Error; err != nil {
		return err
	}
	return utils.List(c, items, len(items), total)
}

// Delete removes an upload record and its hosted files.
func (h *UploadHandler) Delete(c *fiber.Ctx) error {
	id, err := utils.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	actor := middleware.CurrentActor(c)
	db := h.db.WithContext(c.UserContext())

	record, err := first[models.Upload](db, id, "upload")
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && record.UploadedBy != actor.UserID {
		return apperr.ErrForbidden
	}
	if err := db.Delete(&models.Upload{}, "id = ?", id).Error; err != nil {
		return err
	}

	h.discard(c.UserContext(), "upload.delete", record.Files)
	return utils.Message(c, fiber.StatusOK, "upload deleted")
}
