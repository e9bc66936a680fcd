package grove

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Mesh is an Object that draws a list of triangles with a material.
// A mesh with a Source is a resource: it draws nothing until its geometry
// has been loaded. OBJ faces that name a usemtl material are drawn with it
// once its library is loaded; other faces use the mesh material.
type Mesh struct {
	Object

	mu       sync.RWMutex
	tris     []Triangle
	groups   []MeshGroup
	libs     []string
	material *Material
	twoSided bool
	shape    string
	size     Vec3
	source   string

	loaded atomic.Bool
}

// MeshGroup is a run of faces sharing one usemtl material.
type MeshGroup struct {
	MaterialName string
	// Material is nil until a library defining MaterialName is applied.
	Material  *Material
	Triangles []Triangle
}

// NewMesh creates a mesh from triangles in local space.
func NewMesh(name string, tris []Triangle) *Mesh {
	m := &Mesh{tris: tris}
	m.init(m, name)
	m.loaded.Store(true)
	return m
}

// NewMeshFromFile creates a mesh whose geometry is read from an OBJ file by
// a ResourceLoader.
func NewMeshFromFile(name, source string) *Mesh {
	m := &Mesh{source: source, shape: "obj"}
	m.init(m, name)
	return m
}

// Triangles returns the mesh geometry. The slice must not be modified.
func (m *Mesh) Triangles() []Triangle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tris
}

// SetTriangles replaces the geometry and marks the mesh loaded. Material
// groups are dropped.
func (m *Mesh) SetTriangles(tris []Triangle) {
	m.mu.Lock()
	m.tris = tris
	m.groups, m.libs = nil, nil
	m.mu.Unlock()
	m.loaded.Store(true)
}

// Groups returns the usemtl groups of an OBJ mesh, or nil.
func (m *Mesh) Groups() []MeshGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.groups
}

// MaterialLibraries returns the mtllib files named by the OBJ source,
// relative to it.
func (m *Mesh) MaterialLibraries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.libs
}

// ApplyMaterials binds every group whose material lib defines and returns
// how many groups were bound.
func (m *Mesh) ApplyMaterials(lib map[string]*Material) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]MeshGroup, len(m.groups))
	bound := 0
	for i, g := range m.groups {
		if mat, ok := lib[g.MaterialName]; ok {
			g.Material = mat
			bound++
		}
		next[i] = g
	}
	m.groups = next
	return bound
}

// Material returns the material, or nil for DefaultMaterial.
func (m *Mesh) Material() *Material {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.material
}

// SetMaterial sets the material.
func (m *Mesh) SetMaterial(mat *Material) {
	m.mu.Lock()
	m.material = mat
	m.mu.Unlock()
}

// TwoSided reports whether back faces are drawn.
func (m *Mesh) TwoSided() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.twoSided
}

// SetTwoSided sets whether back faces are drawn.
func (m *Mesh) SetTwoSided(v bool) {
	m.mu.Lock()
	m.twoSided = v
	m.mu.Unlock()
}

// Shape returns the library shape the mesh was built from, "obj" for file
// meshes, or "" for custom geometry.
func (m *Mesh) Shape() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shape
}

// Size returns the dimensions passed to the library constructor.
func (m *Mesh) Size() Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Render draws the mesh with the renderer's current matrix.
func (m *Mesh) Render(args *RenderArgs) error {
	if !m.loaded.Load() {
		return nil
	}
	m.mu.RLock()
	tris, groups, mat, two := m.tris, m.groups, m.material, m.twoSided
	m.mu.RUnlock()
	if len(groups) == 0 {
		args.DrawTriangles(tris, DrawOptions{Material: mat, TwoSided: two})
		return nil
	}
	for _, g := range groups {
		gm := g.Material
		if gm == nil {
			gm = mat
		}
		args.DrawTriangles(g.Triangles, DrawOptions{Material: gm, TwoSided: two})
	}
	return nil
}

// --- Resource ---

// Kind returns "mesh".
func (m *Mesh) Kind() string { return "mesh" }

// Path returns the OBJ source path, or "" for in-memory geometry.
func (m *Mesh) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// Loaded reports whether the geometry is available.
func (m *Mesh) Loaded() bool { return m.loaded.Load() }

// Load reads OBJ geometry from r. Material libraries are recorded but not
// read; a ResourceLoader reads them next to the OBJ file.
func (m *Mesh) Load(r io.Reader) error {
	model, err := ParseOBJ(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.tris = model.Triangles
	m.groups = model.Groups
	m.libs = model.Libraries
	m.mu.Unlock()
	m.loaded.Store(true)
	return nil
}

// --- OBJ ---

type objIndex struct{ v, t, n int }

// OBJModel is a parsed OBJ file.
type OBJModel struct {
	Triangles []Triangle
	// Groups splits Triangles by usemtl. It is nil when the file never
	// names a material.
	Groups    []MeshGroup
	Libraries []string
}

// LoadOBJ parses Wavefront OBJ geometry and returns every triangle.
func LoadOBJ(r io.Reader) ([]Triangle, error) {
	model, err := ParseOBJ(r)
	if err != nil {
		return nil, err
	}
	return model.Triangles, nil
}

// ParseOBJ parses v, vt, vn, f, usemtl and mtllib statements. Polygons are
// triangulated as fans; negative indices count back from the latest
// element. g, o and s are ignored. Faces without normals get the flat face
// normal.
func ParseOBJ(r io.Reader) (*OBJModel, error) {
	var (
		positions []Vec3
		uvs       []Vec2
		normals   []Vec3
		tris      []Triangle
		libs      []string
		groups    []MeshGroup
		usemtl    string
		start     int
		named     bool
	)
	closeGroup := func() {
		if len(tris) > start {
			groups = append(groups, MeshGroup{MaterialName: usemtl, Triangles: tris[start:len(tris):len(tris)]})
		}
		start = len(tris)
	}
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
		switch fields[0] {
		case "v":
			f, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("grove: obj line %d: %w", line, err)
			}
			positions = append(positions, Vec3{f[0], f[1], f[2]})
		case "vt":
			f, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("grove: obj line %d: %w", line, err)
			}
			uvs = append(uvs, Vec2{f[0], 1 - f[1]})
		case "vn":
			f, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("grove: obj line %d: %w", line, err)
			}
			normals = append(normals, Vec3{f[0], f[1], f[2]}.Normalize())
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("grove: obj line %d: face needs at least 3 vertices", line)
			}
			idx := make([]objIndex, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				oi, err := parseObjIndex(ref, len(positions), len(uvs), len(normals))
				if err != nil {
					return nil, fmt.Errorf("grove: obj line %d: %w", line, err)
				}
				idx = append(idx, oi)
			}
			for i := 1; i+1 < len(idx); i++ {
				tris = append(tris, objTriangle(positions, uvs, normals, idx[0], idx[i], idx[i+1]))
			}
		case "usemtl":
			if len(fields) != 2 {
				return nil, fmt.Errorf("grove: obj line %d: usemtl needs one name", line)
			}
			if fields[1] != usemtl {
				closeGroup()
				usemtl = fields[1]
			}
			named = true
		case "mtllib":
			libs = append(libs, fields[1:]...)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("grove: read obj: %w", err)
	}
	model := &OBJModel{Triangles: tris, Libraries: libs}
	if named {
		closeGroup()
		// Group slices may point at arrays append has since replaced.
		model.Groups = rebaseGroups(groups, tris)
	}
	return model, nil
}

// rebaseGroups re-slices each group out of tris in order.
func rebaseGroups(groups []MeshGroup, tris []Triangle) []MeshGroup {
	at := 0
	for i := range groups {
		n := len(groups[i].Triangles)
		groups[i].Triangles = tris[at : at+n : at+n]
		at += n
	}
	return groups
}

func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("want %d numbers, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i := range n {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// parseObjIndex parses "v", "v/t", "v//n" or "v/t/n" into zero-based
// indices, -1 meaning absent.
func parseObjIndex(ref string, nv, nt, nn int) (objIndex, error) {
	parts := strings.Split(ref, "/")
	oi := objIndex{-1, -1, -1}
	resolve := func(s string, count int) (int, error) {
		if s == "" {
			return -1, nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		if i < 0 {
			i = count + i
		} else {
			i--
		}
		if i < 0 || i >= count {
			return 0, fmt.Errorf("index %s out of range", s)
		}
		return i, nil
	}
	var err error
	if oi.v, err = resolve(parts[0], nv); err != nil {
		return oi, err
	}
	if oi.v < 0 {
		return oi, fmt.Errorf("face vertex %q has no position", ref)
	}
	if len(parts) > 1 {
		if oi.t, err = resolve(parts[1], nt); err != nil {
			return oi, err
		}
	}
	if len(parts) > 2 {
		if oi.n, err = resolve(parts[2], nn); err != nil {
			return oi, err
		}
	}
	return oi, nil
}

func objTriangle(pos []Vec3, uvs []Vec2, normals []Vec3, a, b, c objIndex) Triangle {
	var t Triangle
	for i, oi := range [3]objIndex{a, b, c} {
		t[i].Pos = pos[oi.v]
		if oi.t >= 0 {
			t[i].UV = uvs[oi.t]
		}
		if oi.n >= 0 {
			t[i].Normal = normals[oi.n]
		}
	}
	flat := faceNormal(t[0].Pos, t[1].Pos, t[2].Pos)
	for i := range t {
		if t[i].Normal == (Vec3{}) {
			t[i].Normal = flat
		}
	}
	return t
}

func faceNormal(a, b, c Vec3) Vec3 {
	return b.Sub(a).Cross(c.Sub(a)).Normalize()
}
