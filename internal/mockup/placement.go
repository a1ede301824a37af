package mockup

import (
	"fmt"
	"math"
)

// ProductType identifies a physical product a mockup can show.
type ProductType string

const (
	ProductCoffeeMug    ProductType = "White ceramic coffee mug"
	ProductTShirt       ProductType = "Black cotton t-shirt on a hanger"
	ProductFramedPrint  ProductType = "Framed art print on a gallery wall"
	ProductToteBag      ProductType = "Canvas tote bag resting on a chair"
	ProductPhoneCase    ProductType = "Modern smartphone case on a desk"
	ProductJournal      ProductType = "Hardcover journal with a pen"
	ProductThrowPillow  ProductType = "Throw pillow on a minimalist sofa"
	ProductBaseballCap  ProductType = "Baseball cap on a wooden surface"
	ProductWaterBottle  ProductType = "Stainless steel water bottle"
	ProductGreetingCard ProductType = "Greeting card with envelope"
)

// ProductTypes lists every product in display order.
var ProductTypes = []ProductType{
	ProductCoffeeMug,
	ProductTShirt,
	ProductFramedPrint,
	ProductToteBag,
	ProductPhoneCase,
	ProductJournal,
	ProductThrowPillow,
	ProductBaseballCap,
	ProductWaterBottle,
	ProductGreetingCard,
}

// Placement is the rectangle, in base-image pixels, the artwork is stretched
// into. Rotation is in radians about the rectangle's center; positive values
// turn clockwise on screen because the y axis points down.
type Placement struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
}

// Point is a position in base-image pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Validate rejects non-positive sizes and non-finite values.
func (p Placement) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"x", p.X}, {"y", p.Y}, {"width", p.Width}, {"height", p.Height}, {"rotation", p.Rotation},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &InvalidPlacementError{Field: f.name, Value: f.v}
		}
	}
	if p.Width <= 0 {
		return &InvalidPlacementError{Field: "width", Value: p.Width}
	}
	if p.Height <= 0 {
		return &InvalidPlacementError{Field: "height", Value: p.Height}
	}
	return nil
}

// Center returns the pivot the rotation is applied around.
func (p Placement) Center() Point {
	return Point{X: p.X + p.Width/2, Y: p.Y + p.Height/2}
}

// Corners returns where the artwork's top-left, top-right, bottom-right and
// bottom-left corners land after rotation.
func (p Placement) Corners() [4]Point {
	c := p.Center()
	sin, cos := math.Sincos(p.Rotation)
	hw, hh := p.Width/2, p.Height/2
	local := [4]Point{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}}
	var out [4]Point
	for i, l := range local {
		out[i] = Point{
			X: c.X + cos*l.X - sin*l.Y,
			Y: c.Y + sin*l.X + cos*l.Y,
		}
	}
	return out
}

// Template binds a product to its background photo and placement.
type Template struct {
	Product   ProductType
	Base      BaseSource
	Placement Placement
}

// Registry is an immutable product → template table. It is safe for
// concurrent use.
type Registry struct {
	byProduct map[ProductType]Template
	order     []ProductType
}

// NewRegistry validates every template and builds the lookup table. A bad
// placement or a duplicate product is a configuration error.
func NewRegistry(templates ...Template) (*Registry, error) {
	r := &Registry{byProduct: make(map[ProductType]Template, len(templates))}
	for _, t := range templates {
		if t.Product == "" {
			return nil, fmt.Errorf("template without product type")
		}
		if t.Base == nil {
			return nil, fmt.Errorf("template %q has no base image", t.Product)
		}
		if err := t.Placement.Validate(); err != nil {
			err.(*InvalidPlacementError).Product = t.Product
			return nil, err
		}
		if _, dup := r.byProduct[t.Product]; dup {
			return nil, fmt.Errorf("duplicate template for %q", t.Product)
		}
		r.byProduct[t.Product] = t
		r.order = append(r.order, t.Product)
	}
	return r, nil
}

// Lookup returns the template for product or ErrTemplateNotFound.
func (r *Registry) Lookup(product ProductType) (Template, error) {
	t, ok := r.byProduct[product]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, product)
	}
	return t, nil
}

// Products returns the supported products in registration order.
func (r *Registry) Products() []ProductType {
	return append([]ProductType(nil), r.order...)
}

const pexelsQuery = "?auto=compress&cs=tinysrgb&w=1260&h=750&dpr=1"

// DefaultTemplates are the built-in canvas templates, 1260x750 stock photos.
func DefaultTemplates() []Template {
	return []Template{
		{
			Product:   ProductCoffeeMug,
			Base:      URLSource{URL: "https://images.pexels.com/photos/1579926/pexels-photo-1579926.jpeg" + pexelsQuery},
			Placement: Placement{X: 320, Y: 310, Width: 180, Height: 180, Rotation: -0.05},
		},
		{
			Product:   ProductToteBag,
			Base:      URLSource{URL: "https://images.pexels.com/photos/6813036/pexels-photo-6813036.jpeg" + pexelsQuery},
			Placement: Placement{X: 250, Y: 200, Width: 300, Height: 300, Rotation: 0.02},
		},
		{
			Product:   ProductFramedPrint,
			Base:      URLSource{URL: "https://images.pexels.com/photos/1040499/pexels-photo-1040499.jpeg" + pexelsQuery},
			Placement: Placement{X: 305, Y: 260, Width: 200, Height: 280},
		},
		{
			Product:   ProductWaterBottle,
			Base:      URLSource{URL: "https://images.pexels.com/photos/7845123/pexels-photo-7845123.jpeg" + pexelsQuery},
			Placement: Placement{X: 450, Y: 200, Width: 220, Height: 350},
		},
	}
}
