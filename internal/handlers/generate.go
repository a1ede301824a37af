package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"mockup/internal/generate"
	"mockup/internal/metrics"
	"mockup/internal/mockup"
	u "mockup/internal/utils"
)

// GenerateService turns scene controls and artwork into a generated mockup.
type GenerateService struct {
	Config   *u.Config
	Provider generate.Provider
}

// NewGenerateService creates a GenerateService.
func NewGenerateService(cfg u.Config, p generate.Provider) *GenerateService {
	return &GenerateService{Config: &cfg, Provider: p}
}

// HandleGenerate accepts a multipart scene request: the artwork as "file"
// plus productType, aesthetic, photoStyle, props, tech (repeatable),
// freestyle and overlayDescription.
func (svc *GenerateService) HandleGenerate(c *fiber.Ctx) error {
	scene, err := extractSceneRequest(c)
	if err != nil {
		return err
	}
	art, err := readArtwork(c, "file", svc.Config.Limits.MaxArtworkBytes)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	if t := svc.Config.Generate.Timeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	start := time.Now()
	img, err := svc.Provider.Generate(ctx, generate.Request{Prompt: generate.BuildPrompt(scene), Overlay: art})
	if err != nil {
		metrics.RecordGeneration(svc.Provider.Name(), "error")
		return generateError(err)
	}
	metrics.RecordGeneration(img.Provider, "ok")

	u.Info("Scene generated", "product", string(scene.ProductType), "provider", img.Provider,
		"duration_ms", time.Since(start).Milliseconds(), "request_id", requestID(c))
	return c.JSON(fiber.Map{"images": []string{img.URL}, "provider": img.Provider})
}

func extractSceneRequest(c *fiber.Ctx) (generate.SceneRequest, error) {
	req := generate.SceneRequest{
		ProductType:        mockup.ProductType(c.FormValue("productType")),
		Aesthetic:          c.FormValue("aesthetic"),
		PhotoStyle:         c.FormValue("photoStyle"),
		Props:              c.FormValue("props"),
		Freestyle:          c.FormValue("freestyle"),
		OverlayDescription: c.FormValue("overlayDescription"),
	}
	if form, err := c.MultipartForm(); err == nil {
		req.Tech = form.Value["tech"]
	}

	req, err := req.Normalize()
	if err != nil {
		return req, fiber.NewError(fiber.StatusBadRequest, "Invalid productType: missing")
	}
	return req, nil
}

func generateError(err error) *fiber.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		u.Error("Scene generation timed out", "error", err)
		return fiber.NewError(fiber.StatusGatewayTimeout, "Image generation took too long")
	case errors.Is(err, context.Canceled):
		return fiber.NewError(fiber.StatusRequestTimeout, "Request cancelled")
	case errors.Is(err, generate.ErrNotConfigured):
		u.Error("Image model is not configured", "error", err)
		return fiber.NewError(fiber.StatusServiceUnavailable, "Image generation is not configured")
	case errors.Is(err, generate.ErrUpstream):
		u.Error("Image model failed", "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "Error from AI service")
	default:
		u.Error("Scene generation failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "Image generation failed")
	}
}

// HandleOptions serves the scene option catalogs.
func HandleOptions(c *fiber.Ctx) error {
	return c.JSON(generate.Options())
}
