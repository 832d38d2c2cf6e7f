package schema

import "github.com/gogpu/gputypes"

// VertexFormat returns the gputypes format of an attribute.
func (a Attribute) VertexFormat() gputypes.VertexFormat {
	switch a.Components {
	case 1:
		return gputypes.VertexFormatFloat32
	case 2:
		return gputypes.VertexFormatFloat32x2
	case 3:
		return gputypes.VertexFormatFloat32x3
	default:
		return gputypes.VertexFormatFloat32x4
	}
}

// BufferLayout converts the stream into a gputypes vertex buffer layout.
func (s Stream) BufferLayout() gputypes.VertexBufferLayout {
	step := gputypes.VertexStepModeVertex
	if s.Step == PerInstance {
		step = gputypes.VertexStepModeInstance
	}
	attrs := make([]gputypes.VertexAttribute, len(s.Attributes))
	for i, a := range s.Attributes {
		attrs[i] = gputypes.VertexAttribute{
			Format:         a.VertexFormat(),
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		}
	}
	return gputypes.VertexBufferLayout{
		ArrayStride: uint64(s.Stride),
		StepMode:    step,
		Attributes:  attrs,
	}
}

// BufferLayouts returns the vertex buffer layouts of an archetype:
// slot 0 is the vertex stream, slot 1 the instance stream.
func (l Layout) BufferLayouts() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		l.Vertex.BufferLayout(),
		l.Instance.BufferLayout(),
	}
}
