// Package pipeline describes the fixed set of render pipelines shared by
// every backend: their archetype, blend mode, shader programs and the
// reference edge-fade math the shaders implement.
//
// A pipeline is identified by a [Key]. Backends build one native pipeline
// per key lazily and cache it for the lifetime of the device.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/gogpu/gfx2d/schema"
)

// Kind aliases the schema archetype so callers need a single import.
type Kind = schema.Kind

// Archetypes.
const (
	Sprite       = schema.Sprite
	Mesh         = schema.Mesh
	TexturedMesh = schema.TexturedMesh
)

// Key selects a pipeline.
type Key struct {
	Kind  Kind
	Blend Blend
}

// String returns "kind/blend", e.g. "sprite/alpha".
func (k Key) String() string { return k.Kind.String() + "/" + k.Blend.String() }

// Keys returns every supported key in a stable order.
func Keys() []Key {
	keys := make([]Key, 0, len(schema.Kinds)*len(blends))
	for _, kind := range schema.Kinds {
		for _, b := range blends {
			keys = append(keys, Key{Kind: kind, Blend: b})
		}
	}
	return keys
}

// ParseKey parses the form produced by Key.String. The blend part is
// optional and defaults to alpha.
func ParseKey(s string) (Key, error) {
	kindName, blendName, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "/")
	var key Key
	switch kindName {
	case "sprite":
		key.Kind = Sprite
	case "mesh":
		key.Kind = Mesh
	case "tmesh", "textured_mesh":
		key.Kind = TexturedMesh
	default:
		return Key{}, fmt.Errorf("pipeline: unknown archetype %q", kindName)
	}
	if blendName == "" {
		return key, nil
	}
	b, err := ParseBlend(blendName)
	if err != nil {
		return Key{}, err
	}
	key.Blend = b
	return key, nil
}

// Desc is the backend-neutral description of a pipeline.
type Desc struct {
	Key      Key
	Layout   schema.Layout
	Blend    BlendState
	Textured bool
	// Indexed reports whether draws use the shared unit-quad index buffer.
	Indexed bool
}

// Describe returns the description of key.
func Describe(key Key) Desc {
	return Desc{
		Key:      key,
		Layout:   schema.LayoutOf(key.Kind),
		Blend:    key.Blend.State(),
		Textured: schema.NeedsTexture(key.Kind),
		Indexed:  key.Kind == Sprite,
	}
}
