package imagesource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/url"
	"os"
	"strings"
)

// DefaultMaxImageBytes caps how much of an image a loader will read
const DefaultMaxImageBytes = 20 * 1024 * 1024

// Loader resolves a locally-addressable image reference to its bytes
type Loader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// Resolver dispatches on the reference scheme: http(s) URLs go to the HTTP
// loader, everything else (bare paths, file:// URIs) is read from disk.
type Resolver struct {
	file Loader
	http Loader
}

// NewResolver creates a resolver with the default file and HTTP loaders
func NewResolver() *Resolver {
	return &Resolver{
		file: NewFileLoader(DefaultMaxImageBytes),
		http: NewHTTPLoader(DefaultMaxImageBytes),
	}
}

// NewResolverWithLoaders creates a resolver with custom loaders
func NewResolverWithLoaders(file, http Loader) *Resolver {
	return &Resolver{file: file, http: http}
}

func (r *Resolver) Load(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("empty image reference")
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return r.http.Load(ctx, ref)
	}
	return r.file.Load(ctx, ref)
}

// FileLoader reads images from the local filesystem
type FileLoader struct {
	maxBytes int64
}

// NewFileLoader creates a loader that refuses files larger than maxBytes
func NewFileLoader(maxBytes int64) *FileLoader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &FileLoader{maxBytes: maxBytes}
}

func (l *FileLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	path := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("invalid file URI: %w", err)
		}
		path = u.Path
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("image reference %q is a directory", path)
	}
	if info.Size() > l.maxBytes {
		return nil, fmt.Errorf("image is %d bytes, limit is %d", info.Size(), l.maxBytes)
	}

	data, err := os.ReadFile(path) // #nosec G304 - user-selected image
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if err := checkDecodable(data); err != nil {
		return nil, err
	}
	return data, nil
}

// checkDecodable verifies the header of a supported image format
func checkDecodable(data []byte) error {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	return nil
}
