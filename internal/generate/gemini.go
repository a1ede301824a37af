package generate

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"

	u "mockup/internal/utils"
)

// GeminiProvider calls the generateContent endpoint of a Gemini image model.
type GeminiProvider struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiRequest struct {
	Contents []struct {
		Parts []geminiPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
	} `json:"generationConfig"`
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) url() string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(p.Endpoint, "/"), url.PathEscape(p.Model), url.QueryEscape(p.APIKey))
}

func (p *GeminiProvider) payload(req Request) geminiRequest {
	var body geminiRequest
	parts := []geminiPart{{Text: req.Prompt}}
	if len(req.Overlay.Data) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: req.Overlay.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Overlay.Data),
		}})
	}
	body.Contents = append(body.Contents, struct {
		Parts []geminiPart `json:"parts"`
	}{Parts: parts})
	body.GenerationConfig.ResponseModalities = []string{"IMAGE"}
	return body
}

// Generate sends the prompt and overlay and returns the first image part of
// the answer as a data: URL.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Image, error) {
	if p.APIKey == "" {
		return Image{}, ErrNotConfigured
	}

	timeout := p.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}

	agent := fiber.Post(p.url()).JSON(p.payload(req))
	if timeout > 0 {
		agent.Timeout(timeout)
	}
	status, body, errs := agent.Bytes()
	if err := ctx.Err(); err != nil {
		return Image{}, err
	}
	if len(errs) > 0 {
		return Image{}, fmt.Errorf("%w: %v", ErrUpstream, errs[0])
	}
	if status < 200 || status > 299 {
		u.Error("Image model returned an error", "status", status, "body", truncate(body, 512))
		return Image{}, fmt.Errorf("%w: status %d", ErrUpstream, status)
	}

	dataURL, ok := firstInlineImage(body)
	if !ok {
		reason := gjson.GetBytes(body, "candidates.0.finishReason").String()
		return Image{}, fmt.Errorf("%w: response has no image (finish reason %q)", ErrUpstream, reason)
	}
	return Image{URL: dataURL, Provider: p.Name()}, nil
}

func firstInlineImage(body []byte) (string, bool) {
	var out string
	gjson.GetBytes(body, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		data := part.Get("inlineData.data").String()
		if data == "" {
			return true
		}
		mime := part.Get("inlineData.mimeType").String()
		if mime == "" {
			mime = "image/png"
		}
		out = "data:" + mime + ";base64," + data
		return false
	})
	return out, out != ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
