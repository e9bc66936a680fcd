package grove

import (
	"log/slog"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// Material describes how triangles are shaded. A nil *Material draws with
// DefaultMaterial.
type Material struct {
	Ambient   Color
	Diffuse   Color
	Specular  Color
	Emissive  Color
	Shininess float64
	// Texture, when set, is sampled using the vertex UVs once it has loaded.
	Texture *Texture

	warnOnce sync.Once
}

// DefaultMaterial is a white, matte material.
func DefaultMaterial() *Material {
	return &Material{
		Ambient: Color{0.2, 0.2, 0.2, 1},
		Diffuse: Color{0.8, 0.8, 0.8, 1},
		// Specular stays black; Lambert shading ignores it.
		Specular: ColorBlack,
	}
}

// NewColorMaterial returns a matte material of color c.
func NewColorMaterial(c Color) *Material {
	return &Material{
		Ambient:  c.Scale(0.25),
		Diffuse:  c,
		Specular: ColorBlack,
	}
}

// HasTexture reports whether the material has a texture that has finished
// loading.
func (m *Material) HasTexture() bool {
	return m != nil && m.Texture != nil && m.Texture.Loaded()
}

// sourceImage returns the image to sample. A texture that has not loaded
// yet falls back to WhitePixel, logging a warning once per material.
func (m *Material) sourceImage(log *slog.Logger) *ebiten.Image {
	if m == nil || m.Texture == nil {
		return WhitePixel
	}
	if img := m.Texture.Image(); img != nil {
		return img
	}
	m.warnOnce.Do(func() {
		log.Warn("texture not loaded, drawing untextured", "texture", m.Texture.ID(), "path", m.Texture.Path())
	})
	return WhitePixel
}
