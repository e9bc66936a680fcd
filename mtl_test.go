package grove

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crateMTL = `# crate materials
newmtl wood
Ka 0.1 0.1 0.1
Kd 0.6 0.4 0.2
KS 0.5 0.5 0.5
Ns 32
d 0.5
map_Kd -s 1 1 1 wood.png

NEWMTL metal
kd 0.7
Ke 0.1 0 0
Tr 0.25
map_kd wood.png
`

func TestLoadMTL(t *testing.T) {
	mats, err := LoadMTL(strings.NewReader(crateMTL))
	require.NoError(t, err)
	require.Len(t, mats, 2)

	wood := mats["wood"]
	require.NotNil(t, wood)
	assert.Equal(t, Color{0.1, 0.1, 0.1, 1}, wood.Ambient)
	assert.Equal(t, Color{0.6, 0.4, 0.2, 0.5}, wood.Diffuse)
	assert.Equal(t, Color{0.5, 0.5, 0.5, 1}, wood.Specular)
	assert.Equal(t, 32.0, wood.Shininess)
	require.NotNil(t, wood.Texture)
	assert.Equal(t, "wood.png", wood.Texture.Path())
	assert.False(t, wood.Texture.Loaded())

	metal := mats["metal"]
	require.NotNil(t, metal)
	assert.Equal(t, Color{0.7, 0.7, 0.7, 0.75}, metal.Diffuse)
	assert.Equal(t, Color{0.1, 0, 0, 1}, metal.Emissive)
	assert.Same(t, wood.Texture, metal.Texture, "one texture per path")
	assert.Equal(t, DefaultMaterial().Ambient, metal.Ambient)
}

func TestParseMTLTextureDir(t *testing.T) {
	mats, err := parseMTL(strings.NewReader("newmtl a\nmap_Kd ../img/a.png\n"), "models/crate")
	require.NoError(t, err)
	assert.Equal(t, "models/img/a.png", mats["a"].Texture.Path())
}

func TestLoadMTLErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"before newmtl", "Kd 1 1 1\n", "before newmtl"},
		{"duplicate", "newmtl a\nnewmtl a\n", "defined twice"},
		{"unnamed", "newmtl\n", "newmtl needs one name"},
		{"bad color", "newmtl a\nKd 1 x 1\n", "line 2"},
		{"spectral", "newmtl a\nKa spectral file.rfl\n", "unsupported color form"},
		{"no texture file", "newmtl a\nmap_Kd\n", "needs a file"},
		{"bad dissolve", "newmtl a\nd\n", "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMTL(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
