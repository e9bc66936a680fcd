package grove

import (
	"log/slog"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// Projection is a perspective projection from view space to a target image.
type Projection struct {
	FovY float64 // vertical field of view, degrees
	Near float64
	Far  float64
}

// DefaultProjection is a 60 degree perspective with near 0.1 and far 1000.
func DefaultProjection() Projection {
	return Projection{FovY: 60, Near: 0.1, Far: 1000}
}

// Project maps a view-space point to pixel coordinates on a w by h target.
// ok is false when the point lies outside the near and far planes.
func (p Projection) Project(v Vec3, w, h int) (x, y float64, ok bool) {
	depth := -v.Z
	if depth < p.Near || depth > p.Far {
		return 0, 0, false
	}
	f := 1 / math.Tan(p.FovY*math.Pi/360)
	aspect := float64(w) / float64(h)
	nx := f / aspect * v.X / depth
	ny := f * v.Y / depth
	return (nx + 1) / 2 * float64(w), (1 - ny) / 2 * float64(h), true
}

// SubmitStats reports what a Submit drew.
type SubmitStats struct {
	Triangles int
	Culled    int
	Clipped   int
	Batches   int
}

// batchKey groups triangles that can be submitted in a single draw call.
type batchKey struct {
	src *ebiten.Image
}

// maxBatchVertices keeps batches within 16-bit indices.
const maxBatchVertices = math.MaxUint16 - 2

// Submit draws the recorded triangles onto target, far to near. Back faces
// of one-sided triangles are culled, triangles crossing the near or far
// plane are dropped, and vertices are lit with Lambert shading from the
// recorded lights. Consecutive triangles sharing a source image are drawn
// in one call.
func (b *CommandBuffer) Submit(target *ebiten.Image, proj Projection, log *slog.Logger) SubmitStats {
	var stats SubmitStats
	if len(b.commands) == 0 {
		return stats
	}
	if log == nil {
		log = slog.Default()
	}
	b.sortByDepth()

	bounds := target.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	lights := b.Lights()

	var (
		verts []ebiten.Vertex
		inds  []uint16
		key   batchKey
		op    ebiten.DrawTrianglesOptions
	)
	flush := func() {
		if len(inds) == 0 {
			return
		}
		target.DrawTriangles(verts, inds, key.src, &op)
		stats.Batches++
		verts = verts[:0]
		inds = inds[:0]
	}

	for i := range b.commands {
		cmd := &b.commands[i]
		t := &cmd.Tri

		var sx, sy [3]float64
		visible := true
		for k := range t {
			var ok bool
			sx[k], sy[k], ok = proj.Project(t[k].Pos, w, h)
			if !ok {
				visible = false
				break
			}
		}
		if !visible {
			stats.Clipped++
			continue
		}

		facing := faceNormal(t[0].Pos, t[1].Pos, t[2].Pos).Dot(t[0].Pos.Neg())
		if facing <= 0 && !cmd.TwoSided {
			stats.Culled++
			continue
		}

		mat := cmd.Material
		if mat == nil {
			mat = defaultMaterial
		}
		src := mat.sourceImage(log)
		if src != key.src || len(verts)+3 > maxBatchVertices {
			flush()
			key = batchKey{src: src}
		}

		sw, sh := src.Bounds().Dx(), src.Bounds().Dy()
		base := uint16(len(verts))
		for k := range t {
			normal := t[k].Normal
			if facing <= 0 {
				normal = normal.Neg()
			}
			c := shade(mat, lights, t[k].Pos, normal).Clamp()
			u, v := t[k].UV.X*float64(sw), t[k].UV.Y*float64(sh)
			if src == WhitePixel {
				u, v = 0.5, 0.5
			}
			verts = append(verts, ebiten.Vertex{
				DstX:   float32(sx[k]),
				DstY:   float32(sy[k]),
				SrcX:   float32(u),
				SrcY:   float32(v),
				ColorR: float32(c.R * c.A),
				ColorG: float32(c.G * c.A),
				ColorB: float32(c.B * c.A),
				ColorA: float32(c.A),
			})
		}
		inds = append(inds, base, base+1, base+2)
		stats.Triangles++
	}
	flush()
	return stats
}

var defaultMaterial = DefaultMaterial()

// shade computes the Lambert color of a view-space vertex. Without lights
// the diffuse color is used unlit.
func shade(m *Material, lights []LightState, pos, normal Vec3) Color {
	if len(lights) == 0 {
		return m.Diffuse.Add(m.Emissive)
	}
	c := m.Emissive
	c.A = m.Diffuse.A
	for _, l := range lights {
		c = c.Add(m.Ambient.Mul(l.Ambient))

		toLight := l.Position.Sub(pos)
		dist := toLight.Length()
		dir := toLight.Normalize()
		ndotl := normal.Dot(dir)
		if ndotl <= 0 {
			continue
		}
		att := l.ConstantAttenuation + l.LinearAttenuation*dist + l.QuadraticAttenuation*dist*dist
		if att <= 0 {
			att = 1
		}
		spot := 1.0
		if l.SpotCutoff < 180 {
			cosAngle := dir.Neg().Dot(l.Direction)
			if cosAngle < math.Cos(l.SpotCutoff*math.Pi/180) {
				continue
			}
			spot = math.Pow(math.Max(cosAngle, 0), l.SpotExponent)
		}
		c = c.Add(m.Diffuse.Mul(l.Diffuse).Scale(ndotl * spot / att))
	}
	return c
}
