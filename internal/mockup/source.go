package mockup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// BaseSource yields the encoded bytes of a template's background photo.
// Load must honour ctx and fail with ErrAssetTooLarge past limit bytes
// (limit <= 0 means unlimited).
type BaseSource interface {
	Load(ctx context.Context, limit int) ([]byte, error)
	String() string
}

// URLSource fetches the base image over HTTP(S).
type URLSource struct {
	URL    string
	Client *http.Client
}

func (s URLSource) Load(ctx context.Context, limit int) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", s.URL, resp.StatusCode)
	}
	return readLimited(resp.Body, limit)
}

func (s URLSource) String() string { return s.URL }

// FileSource reads the base image from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context, limit int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, limit)
}

func (s FileSource) String() string { return "file://" + s.Path }

// BytesSource serves an image already held in memory.
type BytesSource []byte

func (s BytesSource) Load(ctx context.Context, limit int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && len(s) > limit {
		return nil, ErrAssetTooLarge
	}
	return s, nil
}

func (s BytesSource) String() string { return fmt.Sprintf("bytes(%d)", len(s)) }

func readLimited(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > limit {
		return nil, ErrAssetTooLarge
	}
	return data, nil
}
