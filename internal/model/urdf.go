package model

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/san-kum/armsim/internal/spatial"
)

type urdfRobot struct {
	XMLName xml.Name    `xml:"robot"`
	Name    string      `xml:"name,attr"`
	Links   []urdfLink  `xml:"link"`
	Joints  []urdfJoint `xml:"joint"`
}

type urdfLink struct {
	Name     string        `xml:"name,attr"`
	Inertial *urdfInertial `xml:"inertial"`
}

type urdfInertial struct {
	Origin *urdfOrigin `xml:"origin"`
	Mass   struct {
		Value float64 `xml:"value,attr"`
	} `xml:"mass"`
	Inertia struct {
		Ixx float64 `xml:"ixx,attr"`
		Ixy float64 `xml:"ixy,attr"`
		Ixz float64 `xml:"ixz,attr"`
		Iyy float64 `xml:"iyy,attr"`
		Iyz float64 `xml:"iyz,attr"`
		Izz float64 `xml:"izz,attr"`
	} `xml:"inertia"`
}

type urdfJoint struct {
	Name   string `xml:"name,attr"`
	Type   string `xml:"type,attr"`
	Parent struct {
		Link string `xml:"link,attr"`
	} `xml:"parent"`
	Child struct {
		Link string `xml:"link,attr"`
	} `xml:"child"`
	Origin *urdfOrigin `xml:"origin"`
	Axis   *struct {
		XYZ string `xml:"xyz,attr"`
	} `xml:"axis"`
	Limit *struct {
		Lower  float64 `xml:"lower,attr"`
		Upper  float64 `xml:"upper,attr"`
		Effort float64 `xml:"effort,attr"`
	} `xml:"limit"`
}

type urdfOrigin struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

// Load reads and parses a URDF file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}
	m, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.Path = path
		}
		return nil, err
	}
	return m, nil
}

// Parse builds a Model from URDF bytes. The description must be a
// single unbranched chain; fixed joints fold into the next movable
// joint's origin, and a trailing fixed joint becomes the end-effector
// frame.
func Parse(data []byte) (*Model, error) {
	var doc urdfRobot
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Reason: fmt.Sprintf("invalid XML: %v", err)}
	}
	if len(doc.Links) == 0 {
		return nil, &LoadError{Reason: "no links defined"}
	}

	linkByName := make(map[string]*urdfLink, len(doc.Links))
	for i := range doc.Links {
		l := &doc.Links[i]
		if _, dup := linkByName[l.Name]; dup {
			return nil, &LoadError{Reason: fmt.Sprintf("duplicate link %q", l.Name)}
		}
		linkByName[l.Name] = l
	}

	jointByParent := make(map[string]*urdfJoint, len(doc.Joints))
	isChild := make(map[string]bool, len(doc.Joints))
	for i := range doc.Joints {
		j := &doc.Joints[i]
		if _, ok := linkByName[j.Parent.Link]; !ok {
			return nil, &LoadError{Reason: fmt.Sprintf("joint %q references missing parent link %q", j.Name, j.Parent.Link)}
		}
		if _, ok := linkByName[j.Child.Link]; !ok {
			return nil, &LoadError{Reason: fmt.Sprintf("joint %q references missing child link %q", j.Name, j.Child.Link)}
		}
		if _, dup := jointByParent[j.Parent.Link]; dup {
			return nil, &LoadError{Reason: fmt.Sprintf("link %q has more than one child joint; only serial chains are supported", j.Parent.Link)}
		}
		jointByParent[j.Parent.Link] = j
		isChild[j.Child.Link] = true
	}

	// Root link: the one that is never a child.
	root := ""
	for name := range linkByName {
		if !isChild[name] {
			if root != "" {
				return nil, &LoadError{Reason: "multiple root links; description is not a single chain"}
			}
			root = name
		}
	}
	if root == "" {
		return nil, &LoadError{Reason: "no root link; joint graph contains a cycle"}
	}

	m := &Model{
		name:     doc.Name,
		base:     root,
		eeOffset: spatial.IdentityPose(),
		eeLink:   root,
		byName:   make(map[string]int),
	}

	// Walk the chain, accumulating fixed-joint transforms into the
	// next movable joint's origin.
	pending := spatial.IdentityPose()
	for cur := root; ; {
		j, ok := jointByParent[cur]
		if !ok {
			break
		}
		origin, err := parseOrigin(j.Origin)
		if err != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("joint %q: %v", j.Name, err)}
		}
		switch j.Type {
		case "fixed":
			pending = pending.Mul(origin)
		case "revolute", "continuous", "prismatic":
			axis := spatial.Vec3{X: 1}
			if j.Axis != nil {
				axis, err = parseVec3(j.Axis.XYZ)
				if err != nil {
					return nil, &LoadError{Reason: fmt.Sprintf("joint %q axis: %v", j.Name, err)}
				}
			}
			if axis.Norm() == 0 {
				return nil, &LoadError{Reason: fmt.Sprintf("joint %q has a zero axis", j.Name)}
			}
			jt := Revolute
			switch j.Type {
			case "continuous":
				jt = Continuous
			case "prismatic":
				jt = Prismatic
			}
			joint := Joint{
				Name:   j.Name,
				Type:   jt,
				Origin: pending.Mul(origin),
				Axis:   axis.Normalize(),
				Parent: j.Parent.Link,
				Child:  j.Child.Link,
			}
			if j.Limit != nil {
				joint.Lower = j.Limit.Lower
				joint.Upper = j.Limit.Upper
				joint.Effort = j.Limit.Effort
			} else if jt != Continuous {
				return nil, &LoadError{Reason: fmt.Sprintf("joint %q: %s joint without limits", j.Name, j.Type)}
			}
			link, err := parseInertial(linkByName[j.Child.Link])
			if err != nil {
				return nil, &LoadError{Reason: err.Error()}
			}
			m.byName[j.Name] = len(m.joints)
			m.joints = append(m.joints, joint)
			m.links = append(m.links, link)
			pending = spatial.IdentityPose()
		default:
			return nil, &LoadError{Reason: fmt.Sprintf("joint %q has unsupported type %q", j.Name, j.Type)}
		}
		cur = j.Child.Link
		m.eeLink = cur
	}

	if len(m.joints) == 0 {
		return nil, &LoadError{Reason: "chain has no movable joints"}
	}
	// A trailing run of fixed joints is the tool-frame offset.
	m.eeOffset = pending
	return m, nil
}

func parseInertial(l *urdfLink) (Link, error) {
	link := Link{Name: l.Name, Inertia: spatial.Identity3().Scale(1e-6)}
	if l.Inertial == nil {
		// Massless connector links are tolerated; they contribute
		// nothing to the dynamics.
		return link, nil
	}
	in := l.Inertial
	if in.Mass.Value < 0 {
		return Link{}, fmt.Errorf("link %q has negative mass", l.Name)
	}
	link.Mass = in.Mass.Value
	if in.Origin != nil {
		com, err := parseVec3(in.Origin.XYZ)
		if err != nil {
			return Link{}, fmt.Errorf("link %q inertial origin: %v", l.Name, err)
		}
		link.COM = com
	}
	link.Inertia = spatial.Mat3{
		{in.Inertia.Ixx, in.Inertia.Ixy, in.Inertia.Ixz},
		{in.Inertia.Ixy, in.Inertia.Iyy, in.Inertia.Iyz},
		{in.Inertia.Ixz, in.Inertia.Iyz, in.Inertia.Izz},
	}
	return link, nil
}

func parseOrigin(o *urdfOrigin) (spatial.Pose, error) {
	p := spatial.IdentityPose()
	if o == nil {
		return p, nil
	}
	if o.XYZ != "" {
		v, err := parseVec3(o.XYZ)
		if err != nil {
			return p, err
		}
		p.Pos = v
	}
	if o.RPY != "" {
		v, err := parseVec3(o.RPY)
		if err != nil {
			return p, err
		}
		p.Rot = spatial.FromRPY(v.X, v.Y, v.Z)
	}
	return p, nil
}

func parseVec3(s string) (spatial.Vec3, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return spatial.Vec3{}, fmt.Errorf("want 3 values, got %q", s)
	}
	var out [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return spatial.Vec3{}, fmt.Errorf("bad number %q", f)
		}
		out[i] = v
	}
	return spatial.Vec3{X: out[0], Y: out[1], Z: out[2]}, nil
}
