// Package generate builds scene prompts and asks an image model to render a
// product mockup around the user's artwork.
package generate

import "mockup/internal/mockup"

// Option catalogs offered by the scene controls.
var (
	Aesthetics = []string{
		"Clean minimalist studio with neutral tones",
		"Cozy bohemian living room with plants",
		"Sleek modern office with metallic accents",
		"Earthy rustic cabin with natural wood",
		"Playful pastel-colored kids room",
		"Dark and moody academic library",
		"Bright and airy Scandinavian kitchen",
		"Luxurious art deco setting",
	}

	PhotoStyles = []string{
		"Soft, diffused natural light from a window",
		"Bright, even studio lighting with a seamless backdrop",
		"Candid lifestyle shot with a person interacting",
		"Organized flat lay from a top-down angle",
		"Detailed macro shot focusing on texture",
		"Dramatic high-contrast lighting with deep shadows",
		"Warm golden hour outdoor lighting",
	}

	Props = []string{
		"Simple & clean with minimal props",
		"Thematic (e.g., coffee beans for a mug)",
		"Nature-inspired with plants, wood, and stones",
		"Office-themed with notebooks and a laptop",
		"Lush & maximalist with rich textures and fabrics",
		"Geometric composition with abstract shapes",
		"Food-related props for kitchen items",
	}

	Tech = []string{
		"4:3 aspect ratio, high resolution",
		"Square 1:1 for social media",
		"Vertical 9:16 for stories",
		"Ultra-sharp focus on the artwork",
		"Slightly desaturated, vintage color palette",
		"Vibrant, high-saturation colors",
	}
)

// Catalog is the full set of scene options, as served to clients.
type Catalog struct {
	ProductTypes []mockup.ProductType `json:"productTypes"`
	Aesthetics   []string             `json:"aesthetics"`
	PhotoStyles  []string             `json:"photoStyles"`
	Props        []string             `json:"props"`
	Tech         []string             `json:"tech"`
}

// Options returns the catalogs. The slices are shared and must not be
// modified.
func Options() Catalog {
	return Catalog{
		ProductTypes: mockup.ProductTypes,
		Aesthetics:   Aesthetics,
		PhotoStyles:  PhotoStyles,
		Props:        Props,
		Tech:         Tech,
	}
}
