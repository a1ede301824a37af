package generate

import (
	"errors"
	"fmt"
	"strings"

	"mockup/internal/mockup"
)

const defaultOverlayDescription = "user-provided art"

// ErrMissingProduct is returned when a scene names no product.
var ErrMissingProduct = errors.New("product type is required")

// SceneRequest holds the scene controls chosen by the user.
type SceneRequest struct {
	ProductType        mockup.ProductType `json:"productType"`
	Aesthetic          string             `json:"aesthetic"`
	PhotoStyle         string             `json:"photoStyle"`
	Props              string             `json:"props"`
	Tech               []string           `json:"tech"`
	Freestyle          string             `json:"freestyle"`
	OverlayDescription string             `json:"overlayDescription"`
}

// Normalize trims every field and fills unset controls with the first entry
// of their catalog.
func (r SceneRequest) Normalize() (SceneRequest, error) {
	r.ProductType = mockup.ProductType(strings.TrimSpace(string(r.ProductType)))
	if r.ProductType == "" {
		return r, ErrMissingProduct
	}
	r.Aesthetic = orFirst(r.Aesthetic, Aesthetics)
	r.PhotoStyle = orFirst(r.PhotoStyle, PhotoStyles)
	r.Props = orFirst(r.Props, Props)
	r.Freestyle = strings.TrimSpace(r.Freestyle)
	r.OverlayDescription = strings.TrimSpace(r.OverlayDescription)
	if r.OverlayDescription == "" {
		r.OverlayDescription = defaultOverlayDescription
	}

	tech := make([]string, 0, len(r.Tech))
	for _, t := range r.Tech {
		if t = strings.TrimSpace(t); t != "" {
			tech = append(tech, t)
		}
	}
	r.Tech = tech
	return r, nil
}

func orFirst(v string, catalog []string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return catalog[0]
}

// BuildPrompt renders the user-content part of the generation request.
// Callers should pass a normalized request.
func BuildPrompt(r SceneRequest) string {
	overlay := r.OverlayDescription
	if overlay == "" {
		overlay = defaultOverlayDescription
	}

	var b strings.Builder
	b.WriteString("Generate a photoreal product mockup scene.\n\n")
	b.WriteString("Goal:\n")
	fmt.Fprintf(&b, "- Show a %s.\n", r.ProductType)
	b.WriteString("- The user's uploaded artwork must appear as the product's printed design. " +
		"Respect proportions, center alignment, and natural perspective/curvature; no warping artifacts.\n\n")

	b.WriteString("Scene controls:\n")
	fmt.Fprintf(&b, "- Aesthetic & Environment: %s.\n", r.Aesthetic)
	fmt.Fprintf(&b, "- Photography style: %s.\n", r.PhotoStyle)
	fmt.Fprintf(&b, "- Props & Composition: %s.\n", r.Props)
	if len(r.Tech) > 0 {
		fmt.Fprintf(&b, "- Technical specs: %s.\n", strings.Join(r.Tech, ", "))
	}
	if r.Freestyle != "" {
		fmt.Fprintf(&b, "- Freestyle modifiers: %s.\n", r.Freestyle)
	}

	fmt.Fprintf(&b, "\nDesign to apply (overlay): %s\n\n", overlay)
	b.WriteString("Output:\n")
	b.WriteString("- Return a single finished mockup image (PNG or JPEG), high resolution, no text overlays, no watermarks, clean edges.\n")
	b.WriteString("- Make it realistic: correct reflections, shadows, and lighting consistent with the scene.\n")
	return b.String()
}
