package services

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/pkg/errors"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/config"
	"github.com/example/sitesnap/internal/models"
)

// MediaHost stores and removes uploaded images and videos.
type MediaHost interface {
	Upload(ctx context.Context, r io.Reader, name string) (models.UploadedFile, error)
	// Delete accepts a hosted URL or a public id. Missing assets are not an error.
	Delete(ctx context.Context, ref string) error
}

var errMediaDisabled = apperr.New(apperr.CodeDependency, "media host not configured")

const destroyNotFound = "not found"

// CloudinaryHost is the MediaHost backed by Cloudinary.
type CloudinaryHost struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewMediaHost returns a Cloudinary host, or one that rejects uploads when
// credentials are absent.
func NewMediaHost(cfg config.CloudinaryConfig) (MediaHost, error) {
	if !cfg.Enabled() {
		return disabledMediaHost{}, nil
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary init")
	}
	return &CloudinaryHost{cld: cld, folder: cfg.Folder}, nil
}

func (h *CloudinaryHost) Upload(ctx context.Context, r io.Reader, name string) (models.UploadedFile, error) {
	resp, err := h.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       h.folder,
		ResourceType: "auto",
	})
	if err != nil {
		return models.UploadedFile{}, errors.Wrapf(err, "cloudinary upload %s", name)
	}
	if resp.Error.Message != "" {
		return models.UploadedFile{}, errors.Errorf("cloudinary upload %s: %s", name, resp.Error.Message)
	}
	return models.UploadedFile{
		URL:          resp.SecureURL,
		PublicID:     resp.PublicID,
		ResourceType: resp.ResourceType,
		Format:       resp.Format,
		Bytes:        resp.Bytes,
		OriginalName: name,
	}, nil
}

func (h *CloudinaryHost) Delete(ctx context.Context, ref string) error {
	publicID := PublicIDFromRef(ref, h.folder)
	if publicID == "" {
		return nil
	}

	// The host does not say whether an id is an image or a video.
	for _, kind := range []string{"image", "video"} {
		resp, err := h.cld.Upload.Destroy(ctx, uploader.DestroyParams{
			PublicID:     publicID,
			ResourceType: kind,
		})
		if err != nil {
			return errors.Wrapf(err, "cloudinary destroy %s", publicID)
		}
		if resp.Error.Message != "" {
			return errors.Errorf("cloudinary destroy %s: %s", publicID, resp.Error.Message)
		}
		if resp.Result != destroyNotFound {
			return nil
		}
	}
	return nil
}

// PublicIDFromRef turns a hosted URL into the asset's public id. Bare ids
// without a folder are placed in folder.
func PublicIDFromRef(ref, folder string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	id := ref
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return ""
		}
		id = publicIDFromPath(u.Path)
		if id == "" {
			return ""
		}
	}

	if folder != "" && !strings.Contains(id, "/") {
		id = folder + "/" + id
	}
	return id
}

// publicIDFromPath handles /<cloud>/<type>/upload/[transforms/][v123/]<id>.<ext>.
func publicIDFromPath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	start := -1
	for i, part := range parts {
		if part == "upload" {
			start = i + 1
			break
		}
	}
	if start < 0 || start >= len(parts) {
		base := path.Base(p)
		return strings.TrimSuffix(base, path.Ext(base))
	}

	rest := parts[start:]
	for i, part := range rest {
		if isVersionSegment(part) && i+1 < len(rest) {
			rest = rest[i+1:]
			break
		}
	}

	id := strings.Join(rest, "/")
	return strings.TrimSuffix(id, path.Ext(id))
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type disabledMediaHost struct{}

func (disabledMediaHost) Upload(context.Context, io.Reader, string) (models.UploadedFile, error) {
	return models.UploadedFile{}, errMediaDisabled
}

func (disabledMediaHost) Delete(context.Context, string) error {
	return nil
}
