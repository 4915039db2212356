package service

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const (
	// iconSize is the edge length of generated icons.
	iconSize = 16
)

// iconCache caches encoded icon bytes per extension for the process
// lifetime; extensions are few and the encodings are immutable.
var iconCache sync.Map

// FileIcon returns encoded raster bytes representing the specified
// extension. Where no native icon source is wired, a deterministic
// placeholder is generated so the host always has something to render.
func (s *Service) FileIcon(ext string) ([]byte, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))

	// Consult the cache.
	if cached, ok := iconCache.Load(ext); ok {
		return cached.([]byte), nil
	}

	// Generate and cache the icon.
	encoded, err := renderExtensionIcon(ext)
	if err != nil {
		return nil, err
	}
	iconCache.Store(ext, encoded)
	return encoded, nil
}

// renderExtensionIcon produces a small PNG tile whose color derives from the
// extension, so distinct extensions remain visually distinguishable.
func renderExtensionIcon(ext string) ([]byte, error) {
	// Derive a stable color from the extension.
	var hash uint32 = 2166136261
	for i := 0; i < len(ext); i++ {
		hash ^= uint32(ext[i])
		hash *= 16777619
	}
	fill := color.NRGBA{
		R: 96 + uint8(hash>>16)%128,
		G: 96 + uint8(hash>>8)%128,
		B: 96 + uint8(hash)%128,
		A: 255,
	}

	// Render the tile with a one-pixel border.
	tile := image.NewNRGBA(image.Rect(0, 0, iconSize, iconSize))
	border := color.NRGBA{R: 64, G: 64, B: 64, A: 255}
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			if x == 0 || y == 0 || x == iconSize-1 || y == iconSize-1 {
				tile.SetNRGBA(x, y, border)
			} else {
				tile.SetNRGBA(x, y, fill)
			}
		}
	}

	// Encode.
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, tile); err != nil {
		return nil, errors.Wrap(err, "unable to encode icon")
	}
	return buffer.Bytes(), nil
}
