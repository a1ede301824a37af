// Package mockup renders user artwork onto product template photos.
//
// A composite is produced in explicit stages: decode base, decode artwork,
// transform, flatten, encode. Only the base load blocks on I/O. Nothing is
// shared between calls except the read-only Registry.
package mockup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/webp"
)

// maxPixels bounds decoded image area so a tiny file cannot expand into a
// multi-gigabyte canvas.
const maxPixels = 8192 * 8192

// Artwork is an uploaded image and the MIME type the client declared for it.
type Artwork struct {
	Data     []byte
	MIMEType string
}

// Result is a flattened PNG the size of the template's base image.
type Result struct {
	PNG    []byte
	Width  int
	Height int
}

// Options bound the work a single composite may do.
type Options struct {
	AssetTimeout    time.Duration
	MaxBaseBytes    int
	MaxArtworkBytes int
}

// Compositor renders templates. The zero value has no limits.
type Compositor struct {
	opts Options
}

// New returns a Compositor with the given limits.
func New(opts Options) *Compositor {
	return &Compositor{opts: opts}
}

// Composite draws art onto tmpl's base image and returns the encoded PNG.
// It fails with *InvalidPlacementError or *AssetLoadError and never returns
// partial output.
func (c *Compositor) Composite(ctx context.Context, tmpl Template, art Artwork) (Result, error) {
	if err := tmpl.Placement.Validate(); err != nil {
		var pe *InvalidPlacementError
		if errors.As(err, &pe) {
			pe.Product = tmpl.Product
		}
		return Result{}, err
	}
	if tmpl.Base == nil {
		return Result{}, &AssetLoadError{Asset: AssetBase, Err: errors.New("template has no base image")}
	}

	base, err := c.loadBase(ctx, tmpl.Base)
	if err != nil {
		return Result{}, err
	}
	artwork, err := c.decodeArtwork(ctx, art)
	if err != nil {
		return Result{}, err
	}

	canvas := Render(base, artwork, tmpl.Placement)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, canvas); err != nil {
		return Result{}, fmt.Errorf("encode composite: %w", err)
	}
	b := canvas.Bounds()
	return Result{PNG: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

func (c *Compositor) loadBase(ctx context.Context, src BaseSource) (image.Image, error) {
	if c.opts.AssetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.AssetTimeout)
		defer cancel()
	}

	data, err := src.Load(ctx, c.opts.MaxBaseBytes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, &AssetLoadError{Asset: AssetBase, Err: fmt.Errorf("%s: %w", src, err)}
	}
	img, err := decode(ctx, data)
	if err != nil {
		return nil, &AssetLoadError{Asset: AssetBase, Err: fmt.Errorf("%s: %w", src, err)}
	}
	return img, nil
}

func (c *Compositor) decodeArtwork(ctx context.Context, art Artwork) (image.Image, error) {
	if len(art.Data) == 0 {
		return nil, &AssetLoadError{Asset: AssetArtwork, Err: ErrEmptyAsset}
	}
	if c.opts.MaxArtworkBytes > 0 && len(art.Data) > c.opts.MaxArtworkBytes {
		return nil, &AssetLoadError{Asset: AssetArtwork, Err: ErrAssetTooLarge}
	}
	img, err := decode(ctx, art.Data)
	if err != nil {
		return nil, &AssetLoadError{Asset: AssetArtwork, Err: err}
	}
	return img, nil
}

// decode sniffs the format, checks the declared dimensions against maxPixels,
// then decodes. ctx is checked on both sides of the decode.
func decode(ctx context.Context, data []byte) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrAssetTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}

// Render paints base at its native size and draws art over it, stretched to
// p's width and height and rotated about p's center. The returned canvas
// always starts at the origin and stores pixels in a format that holds the
// base exactly.
func Render(base, art image.Image, p Placement) draw.Image {
	canvas := cloneBase(base)
	draw.BiLinear.Transform(canvas, artworkToCanvas(art.Bounds(), p), art, art.Bounds(), draw.Over, nil)
	return canvas
}

// cloneBase copies base onto an origin-anchored canvas without changing any
// pixel value. Non-premultiplied and 16-bit bases keep their own layout since
// an 8-bit premultiplied RGBA canvas would round them.
func cloneBase(base image.Image) draw.Image {
	bb := base.Bounds()
	r := image.Rect(0, 0, bb.Dx(), bb.Dy())

	switch b := base.(type) {
	case *image.NRGBA:
		c := image.NewNRGBA(r)
		copyRows(c.Pix, c.Stride, b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y):], b.Stride, 4*bb.Dx(), bb.Dy())
		return c
	case *image.NRGBA64:
		c := image.NewNRGBA64(r)
		copyRows(c.Pix, c.Stride, b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y):], b.Stride, 8*bb.Dx(), bb.Dy())
		return c
	case *image.RGBA64:
		c := image.NewRGBA64(r)
		copyRows(c.Pix, c.Stride, b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y):], b.Stride, 8*bb.Dx(), bb.Dy())
		return c
	case *image.Gray16:
		c := image.NewRGBA64(r)
		draw.Draw(c, r, b, bb.Min, draw.Src)
		return c
	case *image.Paletted:
		c := image.NewNRGBA(r)
		for y := bb.Min.Y; y < bb.Max.Y; y++ {
			for x := bb.Min.X; x < bb.Max.X; x++ {
				c.Set(x-bb.Min.X, y-bb.Min.Y, b.Palette[b.ColorIndexAt(x, y)])
			}
		}
		return c
	}

	c := image.NewRGBA(r)
	draw.Draw(c, r, base, bb.Min, draw.Src)
	return c
}

func copyRows(dst []byte, dstStride int, src []byte, srcStride, rowBytes, rows int) {
	for y := 0; y < rows; y++ {
		copy(dst[y*dstStride:y*dstStride+rowBytes], src[y*srcStride:y*srcStride+rowBytes])
	}
}

// artworkToCanvas builds the source-to-destination affine map: scale the
// artwork rectangle sr to p's size, center it on the origin, rotate, then
// move the origin to p's center.
func artworkToCanvas(sr image.Rectangle, p Placement) f64.Aff3 {
	kx := p.Width / float64(sr.Dx())
	ky := p.Height / float64(sr.Dy())
	sin, cos := math.Sincos(p.Rotation)
	c := p.Center()

	// local = (k*(s - sr.Min)) - size/2
	ox := -kx*float64(sr.Min.X) - p.Width/2
	oy := -ky*float64(sr.Min.Y) - p.Height/2

	return f64.Aff3{
		cos * kx, -sin * ky, c.X + cos*ox - sin*oy,
		sin * kx, cos * ky, c.Y + sin*ox + cos*oy,
	}
}
