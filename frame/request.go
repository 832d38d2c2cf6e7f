package frame

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/gfx2d/internal/geomcache"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
	"github.com/gogpu/gfx2d/texture"
)

// ErrEmptyRequest is returned for mesh requests without vertices.
var ErrEmptyRequest = errors.New("frame: request has no geometry")

// Request is one caller draw. Exactly the fields of its Kind are used.
type Request struct {
	Kind  pipeline.Kind
	Blend pipeline.Blend

	// Texture is sampled by sprites and textured meshes. A zero or
	// released handle draws with the placeholder.
	Texture texture.Handle

	Sprites []schema.SpriteInstance

	MeshVertices  []schema.MeshVertex
	MeshInstances []schema.MeshInstance

	TexturedVertices  []schema.TexturedMeshVertex
	TexturedInstances []schema.TexturedMeshInstance

	// GeometryKey marks mesh vertices that repeat across frames, letting
	// the submitter reuse their encoding. Zero disables reuse.
	GeometryKey uint64
}

// Key returns the pipeline the request draws with.
func (r *Request) Key() pipeline.Key { return pipeline.Key{Kind: r.Kind, Blend: r.Blend} }

// encoded is a request turned into stream bytes.
type encoded struct {
	vertices      []byte
	vertexCount   uint32
	geometry      geometryID
	instances     []byte
	instanceCount uint32
}

func (r *Request) encode(cache *geomcache.Cache) (encoded, error) {
	var e encoded
	switch r.Kind {
	case pipeline.Sprite:
		e.instances = schema.AppendSprites(nil, r.Sprites...)
		e.instanceCount = uint32(len(r.Sprites)) //nolint:gosec // bounded by memory

	case pipeline.Mesh:
		if len(r.MeshVertices) == 0 {
			return e, fmt.Errorf("%w: %s", ErrEmptyRequest, r.Kind)
		}
		e.vertices, e.geometry = r.geometry(cache, len(r.MeshVertices), func() []byte {
			return schema.AppendMeshVertices(nil, r.MeshVertices...)
		})
		e.vertexCount = uint32(len(r.MeshVertices)) //nolint:gosec // bounded by memory
		insts := r.MeshInstances
		if len(insts) == 0 {
			insts = []schema.MeshInstance{identityMesh}
		}
		e.instances = schema.AppendMeshInstances(nil, insts...)
		e.instanceCount = uint32(len(insts)) //nolint:gosec // bounded by memory

	case pipeline.TexturedMesh:
		if len(r.TexturedVertices) == 0 {
			return e, fmt.Errorf("%w: %s", ErrEmptyRequest, r.Kind)
		}
		e.vertices, e.geometry = r.geometry(cache, len(r.TexturedVertices), func() []byte {
			return schema.AppendTexturedMeshVertices(nil, r.TexturedVertices...)
		})
		e.vertexCount = uint32(len(r.TexturedVertices)) //nolint:gosec // bounded by memory
		insts := r.TexturedInstances
		if len(insts) == 0 {
			insts = []schema.TexturedMeshInstance{schema.DefaultTexturedMeshInstance()}
		}
		e.instances = schema.AppendTexturedMeshInstances(nil, insts...)
		e.instanceCount = uint32(len(insts)) //nolint:gosec // bounded by memory

	default:
		return e, fmt.Errorf("frame: unknown archetype %s", r.Kind)
	}
	return e, nil
}

// geometryID identifies the vertex stream of a batch. It is scoped by
// archetype and vertex count, so equal keys of different formats never
// share a buffer. The zero value means no vertex stream.
type geometryID struct {
	kind  pipeline.Kind
	keyed bool
	id    uint64
	count uint32
}

// geometry returns the encoded vertices and their identity. Keyed
// geometry goes through the cache; unkeyed geometry is identified by the
// hash of its encoding.
func (r *Request) geometry(cache *geomcache.Cache, count int, encode func() []byte) ([]byte, geometryID) {
	id := geometryID{kind: r.Kind, count: uint32(count)} //nolint:gosec // bounded by memory
	if r.GeometryKey != 0 && cache != nil {
		id.keyed, id.id = true, r.GeometryKey
		size := count * int(schema.LayoutOf(r.Kind).Vertex.Stride)
		return cache.Encoded(geomcache.Key{Scope: uint8(r.Kind), ID: r.GeometryKey}, size, encode), id
	}
	b := encode()
	id.id = geomcache.Hash(b)
	return b, id
}

var identityMesh = schema.MeshInstance{Model: mgl32.Ident4()}
