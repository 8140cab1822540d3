package terrain

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
)

const (
	previewAmbientLight = 0.55
	previewSlopeLight   = 0.45
)

// PreviewImage renders a top-down image of the tile, one pixel per sample,
// shaded by the slope towards the north-west.
func PreviewImage(tile *Tile) (*image.NRGBA, error) {
	if tile == nil {
		return nil, fmt.Errorf("tile is nil")
	}
	side := tile.Side()
	if side <= 1 || len(tile.Samples) != side*side {
		return nil, fmt.Errorf("invalid tile resolution %d", tile.Resolution)
	}

	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for iz := 0; iz < side; iz++ {
		for ix := 0; ix < side; ix++ {
			idx := iz*side + ix
			light := 1.0
			if tile.Owners[idx] >= 0 && ix > 0 && iz > 0 {
				dh := tile.Samples[idx].Height - tile.Samples[(iz-1)*side+ix-1].Height
				light = previewAmbientLight + previewSlopeLight*(0.5+math.Atan(dh/tile.Step*4)/math.Pi)
			}
			img.SetNRGBA(ix, iz, applyLighting(tile.Colors[idx], light))
		}
	}
	return img, nil
}

// WritePreview encodes the tile preview as PNG.
func WritePreview(w io.Writer, tile *Tile) error {
	img, err := PreviewImage(tile)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

// SavePreview writes chunk_<x>_<z>_<lod>.png into outputDir and returns the
// file path.
func SavePreview(tile *Tile, outputDir string) (string, error) {
	if err := ensurePreviewDir(outputDir); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, fmt.Sprintf("chunk_%d_%d_%s.png", tile.Coord.X, tile.Coord.Z, tile.LOD))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := WritePreview(file, tile); err != nil {
		return "", err
	}
	return path, nil
}

func ensurePreviewDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return os.MkdirAll(dir, 0o755)
}

func applyLighting(base RGB, factor float64) color.NRGBA {
	scale := func(v uint8) uint8 {
		return uint8(math.Max(0, math.Min(255, float64(v)*factor)))
	}
	return color.NRGBA{R: scale(base.R), G: scale(base.G), B: scale(base.B), A: 255}
}
