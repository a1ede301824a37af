package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"mockup/internal/metrics"
	"mockup/internal/mockup"
	u "mockup/internal/utils"
)

const mockupFilename = "mockup-1.png"

// allowedArtworkTypes are the MIME types the compositor can decode.
var allowedArtworkTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// MockupRequestParams holds validated composite input.
type MockupRequestParams struct {
	Product mockup.ProductType
	Artwork mockup.Artwork
}

// MockupService bundles configuration and dependencies for compositing.
type MockupService struct {
	Config     *u.Config
	Redis      *redis.Client
	Registry   *mockup.Registry
	Compositor *mockup.Compositor
}

// NewMockupService creates a MockupService with limits taken from cfg.
func NewMockupService(cfg u.Config, rdb *redis.Client, reg *mockup.Registry) *MockupService {
	return &MockupService{
		Config:   &cfg,
		Redis:    rdb,
		Registry: reg,
		Compositor: mockup.New(mockup.Options{
			AssetTimeout:    cfg.Compositor.AssetTimeout,
			MaxBaseBytes:    cfg.Limits.MaxBaseBytes,
			MaxArtworkBytes: cfg.Limits.MaxArtworkBytes,
		}),
	}
}

// HandleComposite renders the uploaded artwork onto the product template or
// serves a cached copy.
func (svc *MockupService) HandleComposite(c *fiber.Ctx) error {
	params, err := validateAndExtractMockupParams(c, *svc.Config)
	if err != nil {
		return err
	}

	tmpl, err := svc.Registry.Lookup(params.Product)
	if err != nil {
		metrics.RecordComposite("unknown", "no_template", 0)
		return fiber.NewError(fiber.StatusNotFound,
			fmt.Sprintf("No canvas template for %q; use AI generation for this product", params.Product))
	}

	cacheKey := computeMockupCacheKey(tmpl, params)
	if svc.Redis != nil && svc.Config.Cache.MockupCacheEnabled {
		cached, err := getCachedMockup(c, svc.Redis, cacheKey)
		metrics.RecordCacheLookup(err == nil && cached != nil)
		if err == nil && cached != nil {
			return sendPNG(c, cached, "HIT")
		}
	}

	start := time.Now()
	res, err := svc.Compositor.Composite(c.UserContext(), tmpl, params.Artwork)
	if err != nil {
		outcome, ferr := compositeError(err)
		metrics.RecordComposite(string(params.Product), outcome, 0)
		return ferr
	}
	metrics.RecordComposite(string(params.Product), "ok", time.Since(start))

	if svc.Redis != nil && svc.Config.Cache.MockupCacheEnabled {
		setCachedMockup(c, svc.Redis, cacheKey, res.PNG, svc.Config.Cache.MockupCacheTTL)
	}

	u.Info("Mockup composited", "product", string(params.Product), "width", res.Width, "height", res.Height,
		"bytes", len(res.PNG), "request_id", requestID(c))
	return sendPNG(c, res.PNG, "MISS")
}

func sendPNG(c *fiber.Ctx, data []byte, cache string) error {
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+mockupFilename)
	c.Set("X-Mockup-Cache", cache)
	return c.Send(data)
}

// compositeError maps compositor failures to a metrics outcome and a status.
func compositeError(err error) (string, *fiber.Error) {
	var pe *mockup.InvalidPlacementError
	if errors.As(err, &pe) {
		u.Error("Template placement is invalid", "product", string(pe.Product), "field", pe.Field, "error", err)
		return "invalid_placement", fiber.NewError(fiber.StatusInternalServerError, "Template configuration error")
	}

	var le *mockup.AssetLoadError
	if errors.As(err, &le) {
		if le.Asset == mockup.AssetArtwork {
			if errors.Is(err, mockup.ErrAssetTooLarge) {
				return "artwork_error", fiber.NewError(fiber.StatusRequestEntityTooLarge, "Artwork exceeds allowed size")
			}
			return "artwork_error", fiber.NewError(fiber.StatusUnprocessableEntity, "Artwork could not be decoded: "+le.Err.Error())
		}
		u.Error("Base image load failed", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return "base_timeout", fiber.NewError(fiber.StatusGatewayTimeout, "Template image took too long to load")
		}
		if errors.Is(err, context.Canceled) {
			return "cancelled", fiber.NewError(fiber.StatusRequestTimeout, "Request cancelled")
		}
		return "base_error", fiber.NewError(fiber.StatusBadGateway, "Template image could not be loaded")
	}

	u.Error("Composite failed", "error", err)
	return "error", fiber.NewError(fiber.StatusInternalServerError, "Composite failed")
}

// validateAndExtractMockupParams reads the multipart form: a "file" part and
// a "productType" field.
func validateAndExtractMockupParams(c *fiber.Ctx, cfg u.Config) (*MockupRequestParams, error) {
	product := strings.TrimSpace(c.FormValue("productType"))
	if product == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid productType: missing")
	}

	art, err := readArtwork(c, "file", cfg.Limits.MaxArtworkBytes)
	if err != nil {
		return nil, err
	}
	return &MockupRequestParams{Product: mockup.ProductType(product), Artwork: art}, nil
}

// readArtwork loads an uploaded image part and checks its size and type.
func readArtwork(c *fiber.Ctx, field string, limit int) (mockup.Artwork, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return mockup.Artwork{}, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid %s: missing image upload", field))
	}
	if fh.Size == 0 {
		return mockup.Artwork{}, fiber.NewError(fiber.StatusBadRequest, "Uploaded image is empty")
	}
	if limit > 0 && fh.Size > int64(limit) {
		return mockup.Artwork{}, fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("Artwork exceeds %d bytes", limit))
	}

	data, err := readFormFile(fh)
	if err != nil {
		return mockup.Artwork{}, fiber.NewError(fiber.StatusBadRequest, "Uploaded image could not be read")
	}

	mimeType := declaredType(fh.Header.Get(fiber.HeaderContentType))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !allowedArtworkTypes[mimeType] {
		return mockup.Artwork{}, fiber.NewError(fiber.StatusUnsupportedMediaType,
			fmt.Sprintf("Unsupported image type %q: use PNG, JPEG, GIF or WebP", mimeType))
	}
	return mockup.Artwork{Data: data, MIMEType: mimeType}, nil
}

func declaredType(header string) string {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// computeMockupCacheKey hashes the template (base source and placement) and
// the artwork bytes. Rendering is deterministic so equal keys mean equal
// output, and a reconfigured template never serves an old render.
func computeMockupCacheKey(tmpl mockup.Template, params *MockupRequestParams) string {
	h := sha256.New()
	p := tmpl.Placement
	fmt.Fprintf(h, "%s\x00%s\x00%g,%g,%g,%g,%g\x00", params.Product, tmpl.Base, p.X, p.Y, p.Width, p.Height, p.Rotation)
	h.Write(params.Artwork.Data)
	return "mockupcache:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedMockup returns (nil, nil) on a miss.
func getCachedMockup(c *fiber.Ctx, rdb *redis.Client, key string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := rdb.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil, err
	}

	u.Info("Mockup cache hit", "key", key)
	return cached, nil
}

func setCachedMockup(c *fiber.Ctx, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = 1 * time.Minute
	}

	if err := rdb.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}

// TemplateInfo describes one canvas template.
type TemplateInfo struct {
	ProductType mockup.ProductType `json:"productType"`
	Placement   mockup.Placement   `json:"placement"`
	Corners     [4]mockup.Point    `json:"corners"`
}

// HandleTemplates lists the products that have canvas templates.
func (svc *MockupService) HandleTemplates(c *fiber.Ctx) error {
	products := svc.Registry.Products()
	out := make([]TemplateInfo, 0, len(products))
	for _, p := range products {
		t, err := svc.Registry.Lookup(p)
		if err != nil {
			continue
		}
		out = append(out, TemplateInfo{ProductType: p, Placement: t.Placement, Corners: t.Placement.Corners()})
	}
	return c.JSON(fiber.Map{"templates": out})
}

func requestID(c *fiber.Ctx) string {
	if id := c.Get(fiber.HeaderXRequestID); id != "" {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
