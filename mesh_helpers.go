package grove

import "fmt"

// --- Library shapes ---

// libraryShape builds the geometry of a named library shape. size holds the
// arguments of the matching constructor: box (x, y, z), quad and triangle
// (w, h, 0), grid (w, divisions, d).
func libraryShape(shape string, size Vec3) (tris []Triangle, twoSided bool, err error) {
	switch shape {
	case "box":
		return BoxTriangles(size), false, nil
	case "quad":
		return QuadTriangles(size.X, size.Y), false, nil
	case "triangle":
		return []Triangle{IsoscelesTriangle(size.X, size.Y)}, false, nil
	case "grid":
		return GridTriangles(size.X, size.Z, int(size.Y)), true, nil
	default:
		return nil, false, fmt.Errorf("grove: unknown mesh shape %q", shape)
	}
}

// newShapeMesh creates a mesh from a library shape.
func newShapeMesh(name, shape string, size Vec3) *Mesh {
	tris, two, err := libraryShape(shape, size)
	if err != nil {
		panic(err)
	}
	m := NewMesh(name, tris)
	m.shape, m.size, m.twoSided = shape, size, two
	return m
}

// quadTris returns two triangles for the quad a, b, c, d given
// counter-clockwise as seen from the front.
func quadTris(a, b, c, d Vec3) [2]Triangle {
	n := faceNormal(a, b, c)
	va := Vertex{Pos: a, Normal: n, UV: Vec2{0, 1}}
	vb := Vertex{Pos: b, Normal: n, UV: Vec2{1, 1}}
	vc := Vertex{Pos: c, Normal: n, UV: Vec2{1, 0}}
	vd := Vertex{Pos: d, Normal: n, UV: Vec2{0, 0}}
	return [2]Triangle{{va, vb, vc}, {va, vc, vd}}
}

// BoxTriangles returns the 12 triangles of an axis-aligned box centered on
// the origin.
func BoxTriangles(size Vec3) []Triangle {
	x, y, z := size.X/2, size.Y/2, size.Z/2
	p := [8]Vec3{
		{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z}, // front
		{-x, -y, -z}, {x, -y, -z}, {x, y, -z}, {-x, y, -z}, // back
	}
	faces := [6][4]int{
		{0, 1, 2, 3}, // +Z
		{5, 4, 7, 6}, // -Z
		{1, 5, 6, 2}, // +X
		{4, 0, 3, 7}, // -X
		{3, 2, 6, 7}, // +Y
		{4, 5, 1, 0}, // -Y
	}
	tris := make([]Triangle, 0, 12)
	for _, f := range faces {
		q := quadTris(p[f[0]], p[f[1]], p[f[2]], p[f[3]])
		tris = append(tris, q[0], q[1])
	}
	return tris
}

// NewBox creates a box mesh of the given size centered on its origin.
func NewBox(name string, size Vec3) *Mesh {
	return newShapeMesh(name, "box", size)
}

// QuadTriangles returns a w by h rectangle in the XY plane facing +Z.
func QuadTriangles(w, h float64) []Triangle {
	x, y := w/2, h/2
	q := quadTris(Vec3{-x, -y, 0}, Vec3{x, -y, 0}, Vec3{x, y, 0}, Vec3{-x, y, 0})
	return q[:]
}

// NewQuad creates a w by h rectangle in the XY plane facing +Z.
func NewQuad(name string, w, h float64) *Mesh {
	return newShapeMesh(name, "quad", Vec3{w, h, 0})
}

// IsoscelesTriangle returns an isosceles triangle of width w and height h in
// the XY plane facing +Z.
func IsoscelesTriangle(w, h float64) Triangle {
	a, b, c := Vec3{-w / 2, -h / 2, 0}, Vec3{w / 2, -h / 2, 0}, Vec3{0, h / 2, 0}
	n := faceNormal(a, b, c)
	return Triangle{
		{Pos: a, Normal: n, UV: Vec2{0, 1}},
		{Pos: b, Normal: n, UV: Vec2{1, 1}},
		{Pos: c, Normal: n, UV: Vec2{0.5, 0}},
	}
}

// NewTriangle creates an isosceles triangle of the given width and height
// in the XY plane facing +Z.
func NewTriangle(name string, w, h float64) *Mesh {
	return newShapeMesh(name, "triangle", Vec3{w, h, 0})
}

// GridTriangles returns a w by d plane in XZ facing +Y, split into
// divisions cells per side.
func GridTriangles(w, d float64, divisions int) []Triangle {
	divisions = max(divisions, 1)
	tris := make([]Triangle, 0, 2*divisions*divisions)
	cw, cd := w/float64(divisions), d/float64(divisions)
	x0, z0 := -w/2, -d/2
	for i := range divisions {
		for j := range divisions {
			xa, xb := x0+float64(i)*cw, x0+float64(i+1)*cw
			za, zb := z0+float64(j)*cd, z0+float64(j+1)*cd
			q := quadTris(Vec3{xa, 0, zb}, Vec3{xb, 0, zb}, Vec3{xb, 0, za}, Vec3{xa, 0, za})
			tris = append(tris, q[0], q[1])
		}
	}
	return tris
}

// NewGrid creates a two-sided w by d plane in XZ facing +Y, split into
// divisions cells per side.
func NewGrid(name string, w, d float64, divisions int) *Mesh {
	return newShapeMesh(name, "grid", Vec3{w, float64(max(divisions, 1)), d})
}
