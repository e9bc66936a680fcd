package grove

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// --- Node type registry ---

var (
	typeMu      sync.RWMutex
	typeFactory = map[string]func() Node{}
	typeNames   = map[reflect.Type]string{}
)

// RegisterNodeType makes a node type available to scene documents under
// name. factory must return a new detached node of the same concrete type
// every time.
func RegisterNodeType(name string, factory func() Node) {
	t := reflect.TypeOf(factory())
	typeMu.Lock()
	defer typeMu.Unlock()
	typeFactory[name] = factory
	typeNames[t] = name
}

func init() {
	RegisterNodeType("Container", func() Node { return NewContainer("") })
	RegisterNodeType("Object", func() Node { return NewObject("") })
	RegisterNodeType("Camera", func() Node { return NewCamera("") })
	RegisterNodeType("Scene", func() Node { return NewScene("") })
	RegisterNodeType("Light", func() Node { return NewLight("") })
	RegisterNodeType("Mesh", func() Node { return NewMesh("", nil) })
	RegisterNodeType("Texture", func() Node { return NewTexture("", "") })
	RegisterNodeType("RenderableProxy", func() Node { return NewRenderableProxy("", nil) })
}

func nodeTypeName(n Node) (string, error) {
	typeMu.RLock()
	defer typeMu.RUnlock()
	if name, ok := typeNames[reflect.TypeOf(n)]; ok {
		return name, nil
	}
	return "", fmt.Errorf("grove: node type %T is not registered", n)
}

func newNodeOfType(name string) (Node, error) {
	typeMu.RLock()
	f, ok := typeFactory[name]
	typeMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("grove: unknown node type %q", name)
	}
	return f(), nil
}

// --- Documents ---

// Document is the top level of a scene file.
type Document struct {
	Nodes []NodeDoc `yaml:"nodes"`
}

// NodeDoc is the persisted form of one node and its subtree. Generated
// names are not written.
type NodeDoc struct {
	Type                string    `yaml:"type"`
	Name                string    `yaml:"name,omitempty"`
	Position            *Vec3     `yaml:"position,omitempty"`
	Rotation            *Vec3     `yaml:"rotation,omitempty"`
	Velocity            *Vec3     `yaml:"velocity,omitempty"`
	Acceleration        *Vec3     `yaml:"acceleration,omitempty"`
	AngularVelocity     *Vec3     `yaml:"angular_velocity,omitempty"`
	AngularAcceleration *Vec3     `yaml:"angular_acceleration,omitempty"`
	Path                string    `yaml:"path,omitempty"`
	Mesh                *MeshDoc  `yaml:"mesh,omitempty"`
	Light               *LightDoc `yaml:"light,omitempty"`
	Camera              *NodeDoc  `yaml:"camera,omitempty"`
	Background          *Color    `yaml:"background,omitempty"`
	Children            []NodeDoc `yaml:"children,omitempty"`
}

// MeshDoc describes mesh geometry by library shape or OBJ source.
type MeshDoc struct {
	Shape    string       `yaml:"shape,omitempty"`
	Size     *Vec3        `yaml:"size,omitempty"`
	Source   string       `yaml:"source,omitempty"`
	TwoSided bool         `yaml:"two_sided,omitempty"`
	Material *MaterialDoc `yaml:"material,omitempty"`
}

// MaterialDoc is the persisted form of a Material. Texture is the image
// path.
type MaterialDoc struct {
	Ambient   Color   `yaml:"ambient"`
	Diffuse   Color   `yaml:"diffuse"`
	Specular  Color   `yaml:"specular"`
	Emissive  Color   `yaml:"emissive"`
	Shininess float64 `yaml:"shininess,omitempty"`
	Texture   string  `yaml:"texture,omitempty"`
}

// LightDoc is the persisted form of a light's parameters.
type LightDoc struct {
	Ambient      Color      `yaml:"ambient"`
	Diffuse      Color      `yaml:"diffuse"`
	Specular     Color      `yaml:"specular"`
	Attenuation  [3]float64 `yaml:"attenuation,flow"`
	SpotCutoff   float64    `yaml:"spot_cutoff"`
	SpotExponent float64    `yaml:"spot_exponent,omitempty"`
}

func vecPtr(v Vec3) *Vec3 {
	if v == (Vec3{}) {
		return nil
	}
	return &v
}

func vecOr(p *Vec3) Vec3 {
	if p == nil {
		return Vec3{}
	}
	return *p
}

// EncodeNode builds the document of n and its subtree.
func EncodeNode(n Node) (NodeDoc, error) {
	typ, err := nodeTypeName(n)
	if err != nil {
		return NodeDoc{}, err
	}
	b := n.AsNode()
	doc := NodeDoc{Type: typ}
	if !b.IsAutoNamed() {
		doc.Name = b.Name()
	}
	if nt, ok := n.(Newtonian); ok {
		m := nt.Motion()
		doc.Position = vecPtr(m.Position)
		doc.Rotation = vecPtr(m.Rotation)
		doc.Velocity = vecPtr(m.Velocity)
		doc.Acceleration = vecPtr(m.Acceleration)
		doc.AngularVelocity = vecPtr(m.AngularVelocity)
		doc.AngularAcceleration = vecPtr(m.AngularAcceleration)
	}
	switch v := n.(type) {
	case *Mesh:
		doc.Mesh = encodeMesh(v)
	case *Light:
		s := v.State()
		doc.Light = &LightDoc{
			Ambient:      s.Ambient,
			Diffuse:      s.Diffuse,
			Specular:     s.Specular,
			Attenuation:  [3]float64{s.ConstantAttenuation, s.LinearAttenuation, s.QuadraticAttenuation},
			SpotCutoff:   s.SpotCutoff,
			SpotExponent: s.SpotExponent,
		}
	case *Texture:
		doc.Path = v.Path()
	case *Scene:
		if cam := v.DefaultCamera(); cam != nil {
			cd, err := EncodeNode(cam)
			if err != nil {
				return NodeDoc{}, err
			}
			cd.Children = nil
			doc.Camera = &cd
		}
		if v.Background != (Color{}) {
			bg := v.Background
			doc.Background = &bg
		}
	}
	if cn, ok := n.(ContainerNode); ok {
		for _, child := range cn.AsContainer().Children() {
			cd, err := EncodeNode(child)
			if err != nil {
				return NodeDoc{}, err
			}
			doc.Children = append(doc.Children, cd)
		}
	}
	return doc, nil
}

func encodeMesh(m *Mesh) *MeshDoc {
	d := &MeshDoc{
		Shape:    m.Shape(),
		Size:     vecPtr(m.Size()),
		Source:   m.Path(),
		TwoSided: m.TwoSided(),
	}
	if mat := m.Material(); mat != nil {
		md := &MaterialDoc{
			Ambient:   mat.Ambient,
			Diffuse:   mat.Diffuse,
			Specular:  mat.Specular,
			Emissive:  mat.Emissive,
			Shininess: mat.Shininess,
		}
		if mat.Texture != nil {
			md.Texture = mat.Texture.Path()
		}
		d.Material = md
	}
	return d
}

// DecodeNode builds a detached node tree from doc. Material textures are
// unattached and unloaded; World.LoadScene resolves them.
func DecodeNode(doc NodeDoc) (Node, error) {
	n, err := newNodeOfType(doc.Type)
	if err != nil {
		return nil, err
	}
	if err := n.AsNode().SetName(doc.Name); err != nil {
		return nil, err
	}
	if nt, ok := n.(Newtonian); ok {
		nt.SetMotion(Motion{
			Position:            vecOr(doc.Position),
			Rotation:            vecOr(doc.Rotation),
			Velocity:            vecOr(doc.Velocity),
			Acceleration:        vecOr(doc.Acceleration),
			AngularVelocity:     vecOr(doc.AngularVelocity),
			AngularAcceleration: vecOr(doc.AngularAcceleration),
		})
	}
	switch v := n.(type) {
	case *Mesh:
		if doc.Mesh != nil {
			if err := decodeMesh(v, doc.Mesh); err != nil {
				return nil, fmt.Errorf("grove: mesh %q: %w", doc.Name, err)
			}
		}
	case *Light:
		if l := doc.Light; l != nil {
			s := v.State()
			s.Ambient, s.Diffuse, s.Specular = l.Ambient, l.Diffuse, l.Specular
			s.ConstantAttenuation, s.LinearAttenuation, s.QuadraticAttenuation = l.Attenuation[0], l.Attenuation[1], l.Attenuation[2]
			s.SpotCutoff, s.SpotExponent = l.SpotCutoff, l.SpotExponent
			v.SetState(s)
		}
	case *Texture:
		v.path = doc.Path
	case *Scene:
		if doc.Camera != nil {
			cn, err := DecodeNode(*doc.Camera)
			if err != nil {
				return nil, err
			}
			cam, ok := cn.(*Camera)
			if !ok {
				return nil, fmt.Errorf("grove: scene %q: camera has type %s", doc.Name, doc.Camera.Type)
			}
			v.SetDefaultCamera(cam)
		}
		if doc.Background != nil {
			v.Background = *doc.Background
		}
	}
	if len(doc.Children) > 0 {
		cn, ok := n.(ContainerNode)
		if !ok {
			return nil, fmt.Errorf("grove: %s %q cannot have children", doc.Type, doc.Name)
		}
		for _, cd := range doc.Children {
			child, err := DecodeNode(cd)
			if err != nil {
				return nil, err
			}
			if err := cn.AsContainer().Add(child); err != nil {
				return nil, err
			}
		}
	}
	return n, nil
}

func decodeMesh(m *Mesh, d *MeshDoc) error {
	switch {
	case d.Source != "":
		m.mu.Lock()
		m.source, m.shape = d.Source, "obj"
		m.mu.Unlock()
		m.loaded.Store(false)
	case d.Shape != "":
		tris, two, err := libraryShape(d.Shape, vecOr(d.Size))
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.shape, m.size, m.twoSided = d.Shape, vecOr(d.Size), two
		m.mu.Unlock()
		m.SetTriangles(tris)
	}
	if d.TwoSided {
		m.SetTwoSided(true)
	}
	if md := d.Material; md != nil {
		mat := &Material{
			Ambient:   md.Ambient,
			Diffuse:   md.Diffuse,
			Specular:  md.Specular,
			Emissive:  md.Emissive,
			Shininess: md.Shininess,
		}
		if md.Texture != "" {
			mat.Texture = NewTexture("", md.Texture)
		}
		m.SetMaterial(mat)
	}
	return nil
}

// MarshalNodes writes nodes and their subtrees as a YAML Document.
func MarshalNodes(nodes ...Node) ([]byte, error) {
	var doc Document
	for _, n := range nodes {
		nd, err := EncodeNode(n)
		if err != nil {
			return nil, err
		}
		doc.Nodes = append(doc.Nodes, nd)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("grove: encode scene: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("grove: encode scene: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeNodes reads a YAML Document and builds its detached node trees.
func DecodeNodes(r io.Reader) ([]Node, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("grove: decode scene: %w", err)
	}
	nodes := make([]Node, 0, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		n, err := DecodeNode(nd)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// --- YAML forms of vectors and colors ---

func floatSeq(vals ...float64) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range vals {
		n.Content = append(n.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Value: strconv.FormatFloat(v, 'g', -1, 64),
		})
	}
	return n
}

func decodeFloatSeq(n *yaml.Node, minLen, maxLen int) ([]float64, error) {
	var vals []float64
	if err := n.Decode(&vals); err != nil {
		return nil, err
	}
	if len(vals) < minLen || len(vals) > maxLen {
		return nil, fmt.Errorf("line %d: want %d to %d numbers, got %d", n.Line, minLen, maxLen, len(vals))
	}
	return vals, nil
}

// MarshalYAML writes v as [x, y, z].
func (v Vec3) MarshalYAML() (any, error) { return floatSeq(v.X, v.Y, v.Z), nil }

// UnmarshalYAML reads [x, y, z].
func (v *Vec3) UnmarshalYAML(n *yaml.Node) error {
	vals, err := decodeFloatSeq(n, 3, 3)
	if err != nil {
		return err
	}
	*v = Vec3{vals[0], vals[1], vals[2]}
	return nil
}

// MarshalYAML writes c as [r, g, b, a].
func (c Color) MarshalYAML() (any, error) { return floatSeq(c.R, c.G, c.B, c.A), nil }

// UnmarshalYAML reads [r, g, b] or [r, g, b, a]; alpha defaults to 1.
func (c *Color) UnmarshalYAML(n *yaml.Node) error {
	vals, err := decodeFloatSeq(n, 3, 4)
	if err != nil {
		return err
	}
	*c = Color{vals[0], vals[1], vals[2], 1}
	if len(vals) == 4 {
		c.A = vals[3]
	}
	return nil
}
