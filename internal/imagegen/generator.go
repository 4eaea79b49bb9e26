// Package imagegen talks to the illustration backends.
package imagegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"

	"github.com/vampirenirmal/bookforge/internal/core"
)

// Request describes a single illustration.
type Request struct {
	ID     string
	Prompt string
	// StyleReference is the path of an earlier illustration whose look should
	// be matched. Backends that cannot use it ignore it.
	StyleReference string
	OutputPath     string
}

// Generator produces one image file per request and returns its path.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// CheckImage reports whether path holds a non-empty file recognised as an image.
func CheckImage(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty image path", core.ErrNotFound)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, _ := f.Read(head)
	if n == 0 {
		return fmt.Errorf("%w: %s is empty", core.ErrMalformedResponse, path)
	}
	if !filetype.IsImage(head[:n]) {
		return fmt.Errorf("%w: %s is not an image", core.ErrMalformedResponse, path)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating image directory: %w", err)
	}
	if !filetype.IsImage(data) {
		return fmt.Errorf("%w: payload is not an image", core.ErrMalformedResponse)
	}
	return os.WriteFile(path, data, 0o644)
}
