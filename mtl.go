package grove

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// LoadMTL parses a Wavefront material library into materials keyed by
// name. Keywords are case-insensitive. Ka, Kd, Ks and Ke set the colors, Ns
// the shininess, d or Tr the diffuse alpha, and map_Kd a texture that is
// returned unloaded. Materials sharing a map_Kd path share the Texture.
func LoadMTL(r io.Reader) (map[string]*Material, error) {
	return parseMTL(r, "")
}

// parseMTL resolves texture paths against dir.
func parseMTL(r io.Reader, dir string) (map[string]*Material, error) {
	mats := make(map[string]*Material)
	textures := make(map[string]*Texture)
	var (
		cur     *Material
		curName string
	)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		key := strings.ToLower(fields[0])
		if key == "newmtl" {
			if len(fields) != 2 {
				return nil, fmt.Errorf("grove: mtl line %d: newmtl needs one name", line)
			}
			curName = fields[1]
			if _, dup := mats[curName]; dup {
				return nil, fmt.Errorf("grove: mtl line %d: material %q defined twice", line, curName)
			}
			cur = DefaultMaterial()
			mats[curName] = cur
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("grove: mtl line %d: %s before newmtl", line, fields[0])
		}
		var err error
		switch key {
		case "ka":
			cur.Ambient, err = parseMTLColor(fields[1:], cur.Ambient.A)
		case "kd":
			cur.Diffuse, err = parseMTLColor(fields[1:], cur.Diffuse.A)
		case "ks":
			cur.Specular, err = parseMTLColor(fields[1:], cur.Specular.A)
		case "ke":
			cur.Emissive, err = parseMTLColor(fields[1:], 1)
		case "ns":
			var f []float64
			if f, err = parseFloats(fields[1:], 1); err == nil {
				cur.Shininess = f[0]
			}
		case "d", "tr":
			args := fields[1:]
			if len(args) > 0 && strings.EqualFold(args[0], "-halo") {
				args = args[1:]
			}
			var f []float64
			if f, err = parseFloats(args, 1); err == nil {
				alpha := f[0]
				if key == "tr" {
					alpha = 1 - alpha
				}
				cur.Diffuse.A = clamp01(alpha)
			}
		case "map_kd":
			if len(fields) < 2 {
				err = fmt.Errorf("map_Kd needs a file")
				break
			}
			// Options such as -s or -o come first; the file is last.
			p := fields[len(fields)-1]
			if dir != "" {
				p = path.Join(dir, p)
			}
			t, ok := textures[p]
			if !ok {
				t = NewTexture("", p)
				textures[p] = t
			}
			cur.Texture = t
		}
		if err != nil {
			return nil, fmt.Errorf("grove: mtl line %d (%s): %w", line, curName, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("grove: read mtl: %w", err)
	}
	return mats, nil
}

func parseMTLColor(fields []string, alpha float64) (Color, error) {
	if len(fields) > 0 && !isNumber(fields[0]) {
		// spectral and xyz forms are not supported
		return Color{}, fmt.Errorf("unsupported color form %q", fields[0])
	}
	if len(fields) == 1 {
		fields = []string{fields[0], fields[0], fields[0]}
	}
	f, err := parseFloats(fields, 3)
	if err != nil {
		return Color{}, err
	}
	return Color{f[0], f[1], f[2], alpha}, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
