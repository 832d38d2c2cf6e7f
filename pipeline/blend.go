package pipeline

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// Blend is a fixed-function blend mode.
type Blend uint8

const (
	// BlendAlpha is straight-alpha "over" compositing.
	BlendAlpha Blend = iota
	// BlendAdd adds source color weighted by source alpha.
	BlendAdd
	// BlendMultiply multiplies destination by source color.
	BlendMultiply
	// BlendSubtract subtracts source color from destination.
	BlendSubtract
)

var blends = [...]Blend{BlendAlpha, BlendAdd, BlendMultiply, BlendSubtract}

func (b Blend) String() string {
	switch b {
	case BlendAlpha:
		return "alpha"
	case BlendAdd:
		return "add"
	case BlendMultiply:
		return "multiply"
	case BlendSubtract:
		return "subtract"
	default:
		return fmt.Sprintf("Blend(%d)", uint8(b))
	}
}

// ParseBlend parses a blend mode name.
func ParseBlend(s string) (Blend, error) {
	for _, b := range blends {
		if strings.EqualFold(s, b.String()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("pipeline: unknown blend mode %q", s)
}

// Factor is a blend factor.
type Factor uint8

// Blend factors.
const (
	FactorZero Factor = iota
	FactorOne
	FactorSrcAlpha
	FactorOneMinusSrcAlpha
	FactorDst
	FactorDstAlpha
)

// Op is a blend equation.
type Op uint8

// Blend equations.
const (
	OpAdd Op = iota
	OpReverseSubtract
)

// Component is the blend equation for the color or alpha channel:
// result = src*Src <Op> dst*Dst.
type Component struct {
	Src Factor
	Dst Factor
	Op  Op
}

// BlendState is the full blend equation for a mode.
type BlendState struct {
	Color Component
	Alpha Component
}

// State returns the blend equation of b.
func (b Blend) State() BlendState {
	switch b {
	case BlendAdd:
		return BlendState{
			Color: Component{FactorSrcAlpha, FactorOne, OpAdd},
			Alpha: Component{FactorZero, FactorOne, OpAdd},
		}
	case BlendMultiply:
		return BlendState{
			Color: Component{FactorDst, FactorZero, OpAdd},
			Alpha: Component{FactorDstAlpha, FactorZero, OpAdd},
		}
	case BlendSubtract:
		return BlendState{
			Color: Component{FactorOne, FactorOne, OpReverseSubtract},
			Alpha: Component{FactorZero, FactorOne, OpAdd},
		}
	default:
		return BlendState{
			Color: Component{FactorSrcAlpha, FactorOneMinusSrcAlpha, OpAdd},
			Alpha: Component{FactorOne, FactorOneMinusSrcAlpha, OpAdd},
		}
	}
}

// GPU converts the state to its gputypes form.
func (s BlendState) GPU() gputypes.BlendState {
	return gputypes.BlendState{
		Color: s.Color.gpu(),
		Alpha: s.Alpha.gpu(),
	}
}

func (c Component) gpu() gputypes.BlendComponent {
	return gputypes.BlendComponent{
		SrcFactor: c.Src.gpu(),
		DstFactor: c.Dst.gpu(),
		Operation: c.Op.gpu(),
	}
}

func (f Factor) gpu() gputypes.BlendFactor {
	switch f {
	case FactorOne:
		return gputypes.BlendFactorOne
	case FactorSrcAlpha:
		return gputypes.BlendFactorSrcAlpha
	case FactorOneMinusSrcAlpha:
		return gputypes.BlendFactorOneMinusSrcAlpha
	case FactorDst:
		return gputypes.BlendFactorDst
	case FactorDstAlpha:
		return gputypes.BlendFactorDstAlpha
	default:
		return gputypes.BlendFactorZero
	}
}

func (o Op) gpu() gputypes.BlendOperation {
	if o == OpReverseSubtract {
		return gputypes.BlendOperationReverseSubtract
	}
	return gputypes.BlendOperationAdd
}

// Apply evaluates the equation for one channel. srcA and dstA are the
// alpha values the factors refer to.
func (c Component) Apply(src, dst, srcA, dstA float32) float32 {
	s := src * c.Src.value(src, dst, srcA, dstA)
	d := dst * c.Dst.value(src, dst, srcA, dstA)
	if c.Op == OpReverseSubtract {
		return d - s
	}
	return s + d
}

func (f Factor) value(_, dst, srcA, dstA float32) float32 {
	switch f {
	case FactorOne:
		return 1
	case FactorSrcAlpha:
		return srcA
	case FactorOneMinusSrcAlpha:
		return 1 - srcA
	case FactorDst:
		return dst
	case FactorDstAlpha:
		return dstA
	default:
		return 0
	}
}
