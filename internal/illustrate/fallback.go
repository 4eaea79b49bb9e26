package illustrate

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/vampirenirmal/bookforge/internal/imagegen"
	"github.com/vampirenirmal/bookforge/internal/storage"
)

const fallbackSize = 512

var (
	fallbackFill  = color.NRGBA{R: 236, G: 236, B: 236, A: 255}
	fallbackFrame = color.NRGBA{R: 200, G: 200, B: 200, A: 255}
)

// synthesizeFallback writes a plain framed grey square for id and returns its path.
func synthesizeFallback(store *storage.FileSystem, id string) (string, error) {
	path, err := store.Path(storage.FallbackImageFile(id))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating image directory: %w", err)
	}

	img := imaging.New(fallbackSize, fallbackSize, fallbackFrame)
	img = imaging.Paste(img, imaging.New(fallbackSize-16, fallbackSize-16, fallbackFill), image.Pt(8, 8))

	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("saving fallback image: %w", err)
	}
	return path, nil
}

func verifyImage(path string) error {
	return imagegen.CheckImage(path)
}
