// Package scene assembles simulation world descriptions as an
// explicit element tree mutated by typed operations, instead of
// splicing description strings. The result marshals to MJCF XML.
package scene

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
)

// Element is one node of the description tree.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Children []*Element
}

func newElement(tag string) *Element {
	return &Element{Tag: tag, Attrs: make(map[string]string)}
}

func (e *Element) set(k, v string) *Element {
	e.Attrs[k] = v
	return e
}

func (e *Element) child(tag string) *Element {
	c := newElement(tag)
	e.Children = append(e.Children, c)
	return c
}

// find walks the subtree for the first element with the given name
// attribute.
func (e *Element) find(name string) *Element {
	if e.Attrs["name"] == name {
		return e
	}
	for _, c := range e.Children {
		if hit := c.find(name); hit != nil {
			return hit
		}
	}
	return nil
}

// Op is one typed mutation of the scene tree.
type Op interface {
	apply(t *Tree) error
}

// Tree is a scene description under construction.
type Tree struct {
	root      *Element
	worldbody *Element
	asset     *Element
}

// NewTree returns an empty scene with the standard MJCF skeleton.
func NewTree(modelName string) *Tree {
	root := newElement("mujoco").set("model", modelName)
	asset := root.child("asset")
	worldbody := root.child("worldbody")
	return &Tree{root: root, worldbody: worldbody, asset: asset}
}

// Apply runs ops in order; the first failure aborts and is returned.
func (t *Tree) Apply(ops ...Op) error {
	for _, op := range ops {
		if err := op.apply(t); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) node(name string) (*Element, error) {
	if name == "worldbody" || name == "" {
		return t.worldbody, nil
	}
	if hit := t.worldbody.find(name); hit != nil {
		return hit, nil
	}
	return nil, fmt.Errorf("scene: no node named %q", name)
}

// Marshal renders the tree as MJCF XML.
func (t *Tree) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := encodeElement(enc, t.root); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func encodeElement(enc *xml.Encoder, e *Element) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Tag}}
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: k}, Value: e.Attrs[k]})
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range e.Children {
		if err := encodeElement(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// AddBody adds a body under Parent ("worldbody" when empty).
type AddBody struct {
	Parent string
	Name   string
	Pos    string
}

func (op AddBody) apply(t *Tree) error {
	parent, err := t.node(op.Parent)
	if err != nil {
		return err
	}
	if t.worldbody.find(op.Name) != nil {
		return fmt.Errorf("scene: body %q already exists", op.Name)
	}
	b := parent.child("body").set("name", op.Name)
	if op.Pos != "" {
		b.set("pos", op.Pos)
	}
	return nil
}

// AddGeom attaches a geom to a body.
type AddGeom struct {
	Body     string
	Name     string
	Type     string
	Size     string
	Pos      string
	RGBA     string
	Mass     string
	Material string
}

func (op AddGeom) apply(t *Tree) error {
	body, err := t.node(op.Body)
	if err != nil {
		return err
	}
	g := body.child("geom").set("name", op.Name).set("type", op.Type)
	for k, v := range map[string]string{
		"size": op.Size, "pos": op.Pos, "rgba": op.RGBA,
		"mass": op.Mass, "material": op.Material,
	} {
		if v != "" {
			g.set(k, v)
		}
	}
	return nil
}

// AddJoint attaches a joint to a body.
type AddJoint struct {
	Body string
	Name string
	Type string
	Axis string
}

func (op AddJoint) apply(t *Tree) error {
	body, err := t.node(op.Body)
	if err != nil {
		return err
	}
	body.child("joint").set("name", op.Name).set("type", op.Type).set("axis", op.Axis)
	return nil
}

// AddSite attaches a site to a body.
type AddSite struct {
	Body string
	Name string
	Pos  string
	Size string
	RGBA string
	Type string
}

func (op AddSite) apply(t *Tree) error {
	body, err := t.node(op.Body)
	if err != nil {
		return err
	}
	s := body.child("site").set("name", op.Name)
	for k, v := range map[string]string{
		"pos": op.Pos, "size": op.Size, "rgba": op.RGBA, "type": op.Type,
	} {
		if v != "" {
			s.set(k, v)
		}
	}
	return nil
}

// AddMesh registers a mesh asset.
type AddMesh struct {
	Name  string
	File  string
	Scale string
}

func (op AddMesh) apply(t *Tree) error {
	m := t.asset.child("mesh").set("name", op.Name).set("file", op.File)
	if op.Scale != "" {
		m.set("scale", op.Scale)
	}
	return nil
}

// SetAttr overwrites one attribute of a named node.
type SetAttr struct {
	Node  string
	Key   string
	Value string
}

func (op SetAttr) apply(t *Tree) error {
	n, err := t.node(op.Node)
	if err != nil {
		return err
	}
	n.set(op.Key, op.Value)
	return nil
}
