//go:build !nogpu

package opengl

import (
	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
)

// attrib is one glVertexAttribPointer call relative to a stream base.
type attrib struct {
	location   uint32
	components int32
	stride     int32
	offset     int
	divisor    uint32
	instance   bool
}

// plans holds the attribute setup of every archetype, in location order.
var plans = func() map[schema.Kind][]attrib {
	m := make(map[schema.Kind][]attrib, len(schema.Kinds))
	for _, k := range schema.Kinds {
		m[k] = planOf(schema.LayoutOf(k))
	}
	return m
}()

func planOf(l schema.Layout) []attrib {
	var out []attrib
	for _, s := range []schema.Stream{l.Vertex, l.Instance} {
		inst := s.Step == schema.PerInstance
		var div uint32
		if inst {
			div = 1
		}
		for _, a := range s.Attributes {
			out = append(out, attrib{
				location:   a.Location,
				components: int32(a.Components), //nolint:gosec // 1..4
				stride:     int32(s.Stride),     //nolint:gosec // strides are small
				offset:     int(a.Offset),
				divisor:    div,
				instance:   inst,
			})
		}
	}
	return out
}

// glBlend is a pipeline blend state in GL enums.
type glBlend struct {
	srcRGB, dstRGB     uint32
	srcAlpha, dstAlpha uint32
	eqRGB, eqAlpha     uint32
}

func blendOf(s pipeline.BlendState) glBlend {
	return glBlend{
		srcRGB:   factor(s.Color.Src),
		dstRGB:   factor(s.Color.Dst),
		srcAlpha: factor(s.Alpha.Src),
		dstAlpha: factor(s.Alpha.Dst),
		eqRGB:    equation(s.Color.Op),
		eqAlpha:  equation(s.Alpha.Op),
	}
}

func factor(f pipeline.Factor) uint32 {
	switch f {
	case pipeline.FactorOne:
		return gl.ONE
	case pipeline.FactorSrcAlpha:
		return gl.SRC_ALPHA
	case pipeline.FactorOneMinusSrcAlpha:
		return gl.ONE_MINUS_SRC_ALPHA
	case pipeline.FactorDst:
		return gl.DST_COLOR
	case pipeline.FactorDstAlpha:
		return gl.DST_ALPHA
	default:
		return gl.ZERO
	}
}

func equation(o pipeline.Op) uint32 {
	if o == pipeline.OpReverseSubtract {
		return gl.FUNC_REVERSE_SUBTRACT
	}
	return gl.FUNC_ADD
}

func (b glBlend) apply() {
	gl.BlendFuncSeparate(b.srcRGB, b.dstRGB, b.srcAlpha, b.dstAlpha)
	gl.BlendEquationSeparate(b.eqRGB, b.eqAlpha)
}
