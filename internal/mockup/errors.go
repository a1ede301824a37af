package mockup

import (
	"errors"
	"fmt"
)

// Asset names carried by AssetLoadError.
const (
	AssetBase    = "base"
	AssetArtwork = "artwork"
)

var (
	// ErrTemplateNotFound is returned by Registry.Lookup for products without
	// a canvas template. Callers are expected to offer AI generation instead.
	ErrTemplateNotFound = errors.New("no canvas template for product")
	// ErrAssetTooLarge means an image exceeded its byte or pixel limit.
	ErrAssetTooLarge = errors.New("image exceeds size limit")
	// ErrEmptyAsset means no image bytes were supplied.
	ErrEmptyAsset = errors.New("image is empty")
)

// AssetLoadError reports that the base or artwork image could not be fetched
// or decoded, including timeouts and cancellation.
type AssetLoadError struct {
	Asset string
	Err   error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load %s image: %v", e.Asset, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

// InvalidPlacementError is a configuration defect in a placement rectangle.
type InvalidPlacementError struct {
	Product ProductType
	Field   string
	Value   float64
}

func (e *InvalidPlacementError) Error() string {
	if e.Product == "" {
		return fmt.Sprintf("invalid placement: %s=%v", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid placement for %q: %s=%v", e.Product, e.Field, e.Value)
}
