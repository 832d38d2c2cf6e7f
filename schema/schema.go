// Package schema defines the byte layout of every vertex and instance
// stream consumed by the render pipelines.
//
// The layouts declared here are the single source of truth for all
// backends. Adapters derive their attribute bindings from [LayoutOf]
// instead of hard-coding offsets, and the embedded shader programs are
// checked against it at startup (see package pipeline).
//
// All values are float32, little-endian and tightly packed. Attribute
// locations are numbered per archetype: vertex attributes first, instance
// attributes after.
package schema

import "fmt"

// Kind identifies a draw archetype.
type Kind uint8

const (
	// Sprite draws instanced unit quads.
	Sprite Kind = iota
	// Mesh draws untextured, vertex-colored triangle lists.
	Mesh
	// TexturedMesh draws textured, vertex-colored triangle lists.
	TexturedMesh
)

// Kinds lists every archetype in declaration order.
var Kinds = [...]Kind{Sprite, Mesh, TexturedMesh}

// String returns the archetype name.
func (k Kind) String() string {
	switch k {
	case Sprite:
		return "sprite"
	case Mesh:
		return "mesh"
	case TexturedMesh:
		return "tmesh"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Step is the rate at which a stream advances.
type Step uint8

const (
	// PerVertex streams advance once per vertex.
	PerVertex Step = iota
	// PerInstance streams advance once per instance.
	PerInstance
)

// Attribute is one shader input.
type Attribute struct {
	Name       string
	Location   uint32
	Components int    // number of float32 values, 1..4
	Offset     uint32 // byte offset within the stream element
}

// Size returns the attribute size in bytes.
func (a Attribute) Size() uint32 { return uint32(a.Components) * 4 } //nolint:gosec // Components is 1..4

// Stream describes one vertex buffer binding.
type Stream struct {
	Step       Step
	Stride     uint32
	Attributes []Attribute
}

// Layout is the complete input layout of an archetype.
type Layout struct {
	Kind     Kind
	Vertex   Stream
	Instance Stream
}

// Attributes returns vertex and instance attributes in location order.
func (l Layout) Attributes() []Attribute {
	out := make([]Attribute, 0, len(l.Vertex.Attributes)+len(l.Instance.Attributes))
	out = append(out, l.Vertex.Attributes...)
	return append(out, l.Instance.Attributes...)
}

// Attribute looks up an attribute by name.
func (l Layout) Attribute(name string) (Attribute, bool) {
	for _, a := range l.Attributes() {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

type field struct {
	name       string
	components int
}

func newStream(step Step, firstLocation uint32, fields ...field) Stream {
	s := Stream{Step: step, Attributes: make([]Attribute, len(fields))}
	loc := firstLocation
	for i, f := range fields {
		s.Attributes[i] = Attribute{
			Name:       f.name,
			Location:   loc,
			Components: f.components,
			Offset:     s.Stride,
		}
		s.Stride += uint32(f.components) * 4 //nolint:gosec // components is 1..4
		loc++
	}
	return s
}

var layouts = [...]Layout{
	Sprite: {
		Kind: Sprite,
		Vertex: newStream(PerVertex, 0,
			field{"pos", 2},
			field{"uv", 2},
		),
		Instance: newStream(PerInstance, 2,
			field{"center", 2},
			field{"size", 2},
			field{"rot_sin_cos", 2},
			field{"tint", 4},
			field{"uv_scale", 2},
			field{"uv_offset", 2},
			field{"edge_fade", 4},
		),
	},
	Mesh: {
		Kind: Mesh,
		Vertex: newStream(PerVertex, 0,
			field{"pos", 2},
			field{"color", 4},
		),
		Instance: newStream(PerInstance, 2,
			field{"model_0", 4},
			field{"model_1", 4},
			field{"model_2", 4},
			field{"model_3", 4},
		),
	},
	TexturedMesh: {
		Kind: TexturedMesh,
		Vertex: newStream(PerVertex, 0,
			field{"pos", 2},
			field{"uv", 2},
			field{"tex_matrix_scale", 2},
			field{"color", 4},
		),
		Instance: newStream(PerInstance, 4,
			field{"model_0", 4},
			field{"model_1", 4},
			field{"model_2", 4},
			field{"model_3", 4},
			field{"uv_scale", 2},
			field{"uv_offset", 2},
			field{"uv_tex_shift", 2},
			field{"edge_fade", 4},
		),
	},
}

// LayoutOf returns the input layout of an archetype.
// It panics for an unknown kind.
func LayoutOf(k Kind) Layout {
	if int(k) >= len(layouts) {
		panic(fmt.Sprintf("schema: unknown kind %d", k))
	}
	return layouts[k]
}

// NeedsTexture reports whether the archetype samples a texture.
func NeedsTexture(k Kind) bool { return k != Mesh }

// UsesVertexStream reports whether draws of the archetype take
// caller-supplied vertices. Sprites use the built-in unit quad.
func UsesVertexStream(k Kind) bool { return k != Sprite }
