package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"
)

func near(a, b float32) bool { return math32.Abs(a-b) < 1e-5 }

func TestEdgeFade(t *testing.T) {
	tests := []struct {
		name string
		uv   mgl32.Vec2
		fade mgl32.Vec4
		want float32
	}{
		{"no fade", mgl32.Vec2{0.5, 0.5}, mgl32.Vec4{}, 1},
		{"no fade at corner", mgl32.Vec2{0, 0}, mgl32.Vec4{}, 1},
		{"left ramp", mgl32.Vec2{0.05, 0.5}, mgl32.Vec4{0.1, 0, 0, 0}, 0.5},
		{"left edge", mgl32.Vec2{0, 0.5}, mgl32.Vec4{0.1, 0, 0, 0}, 0},
		{"past ramp", mgl32.Vec2{0.5, 0.5}, mgl32.Vec4{0.1, 0.1, 0.1, 0.1}, 1},
		{"right ramp", mgl32.Vec2{0.95, 0.5}, mgl32.Vec4{0, 0.1, 0, 0}, 0.5},
		{"negative width", mgl32.Vec2{0, 0}, mgl32.Vec4{-1, -1, -1, -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpriteFade(tt.uv, tt.fade); !near(got, tt.want) {
				t.Errorf("SpriteFade = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFadeCombinesAxesPerArchetype(t *testing.T) {
	uv := mgl32.Vec2{0.05, 0.05}
	fade := mgl32.Vec4{0.1, 0, 0.1, 0}
	if got := SpriteFade(uv, fade); !near(got, 0.5) {
		t.Errorf("SpriteFade = %v, want 0.5 (min)", got)
	}
	if got := MeshFade(uv, fade); !near(got, 0.25) {
		t.Errorf("MeshFade = %v, want 0.25 (product)", got)
	}
	if got := Fade(Mesh, uv, fade); got != 1 {
		t.Errorf("Fade(Mesh) = %v, want 1", got)
	}
}

func TestOverlappingFeathersTakeMinWithinAxis(t *testing.T) {
	tests := []struct {
		name string
		uv   mgl32.Vec2
		fade mgl32.Vec4
		want float32
	}{
		{"center of wide pair", mgl32.Vec2{0.5, 0.5}, mgl32.Vec4{0.6, 0.6, 0, 0}, 0.5 / 0.6},
		{"nearer left", mgl32.Vec2{0.4, 0.5}, mgl32.Vec4{0.8, 0.8, 0, 0}, 0.5},
		{"vertical pair", mgl32.Vec2{0.5, 0.6}, mgl32.Vec4{0, 0, 0.8, 0.8}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpriteFade(tt.uv, tt.fade); !near(got, tt.want) {
				t.Errorf("SpriteFade = %v, want %v", got, tt.want)
			}
			if got := MeshFade(tt.uv, tt.fade); !near(got, tt.want) {
				t.Errorf("MeshFade = %v, want %v", got, tt.want)
			}
		})
	}

	// Across axes the archetypes still differ.
	uv, fade := mgl32.Vec2{0.4, 0.4}, mgl32.Vec4{0.8, 0.8, 0.8, 0.8}
	if got := SpriteFade(uv, fade); !near(got, 0.5) {
		t.Errorf("SpriteFade = %v, want 0.5", got)
	}
	if got := MeshFade(uv, fade); !near(got, 0.25) {
		t.Errorf("MeshFade = %v, want 0.25", got)
	}
}

func TestBlendStates(t *testing.T) {
	alpha := BlendAlpha.State()
	if got := alpha.Color.Apply(1, 0, 0.5, 1); !near(got, 0.5) {
		t.Errorf("alpha over black = %v, want 0.5", got)
	}
	add := BlendAdd.State()
	if got := add.Color.Apply(0.5, 0.25, 1, 1); !near(got, 0.75) {
		t.Errorf("add = %v, want 0.75", got)
	}
	mul := BlendMultiply.State()
	if got := mul.Color.Apply(0.5, 0.5, 1, 1); !near(got, 0.25) {
		t.Errorf("multiply = %v, want 0.25", got)
	}
	sub := BlendSubtract.State()
	if got := sub.Color.Apply(0.25, 1, 1, 1); !near(got, 0.75) {
		t.Errorf("subtract = %v, want 0.75", got)
	}

	g := alpha.GPU()
	if g.Color.SrcFactor != gputypes.BlendFactorSrcAlpha || g.Color.DstFactor != gputypes.BlendFactorOneMinusSrcAlpha {
		t.Errorf("alpha GPU color = %+v", g.Color)
	}
	if g.Alpha.SrcFactor != gputypes.BlendFactorOne {
		t.Errorf("alpha GPU alpha = %+v", g.Alpha)
	}
}

func TestParseKey(t *testing.T) {
	for _, k := range Keys() {
		got, err := ParseKey(k.String())
		if err != nil {
			t.Fatalf("ParseKey(%q): %v", k, err)
		}
		if got != k {
			t.Errorf("ParseKey(%q) = %v", k, got)
		}
	}
	if k, err := ParseKey("Sprite"); err != nil || k != (Key{Kind: Sprite}) {
		t.Errorf("ParseKey(Sprite) = %v, %v", k, err)
	}
	if _, err := ParseKey("sprite/screen"); err == nil {
		t.Error("expected error for unknown blend")
	}
	if _, err := ParseKey("line"); err == nil {
		t.Error("expected error for unknown archetype")
	}
}

func TestDescribe(t *testing.T) {
	d := Describe(Key{Kind: Mesh, Blend: BlendAdd})
	if d.Textured || d.Indexed {
		t.Errorf("mesh desc = %+v", d)
	}
	if d.Layout.Instance.Stride != 64 {
		t.Errorf("mesh instance stride = %d", d.Layout.Instance.Stride)
	}
	if s := Describe(Key{Kind: Sprite}); !s.Textured || !s.Indexed {
		t.Errorf("sprite desc = %+v", s)
	}
}

func TestEmbeddedProgramsMatchSchema(t *testing.T) {
	for _, kind := range []Kind{Sprite, Mesh, TexturedMesh} {
		for _, lang := range []Language{WGSL, GLSL} {
			p := MustSource(kind, lang)
			if err := p.CheckLayout(); err != nil {
				t.Errorf("%s/%s: %v", kind, lang, err)
			}
		}
	}
}

func TestCheckLayoutReportsMismatch(t *testing.T) {
	p := MustSource(Sprite, GLSL)
	p.Vertex = strings.Replace(p.Vertex, "in vec4 a_tint", "in vec3 a_tint", 1)
	err := p.CheckLayout()
	if !errors.Is(err, ErrLayoutMismatch) {
		t.Fatalf("err = %v, want ErrLayoutMismatch", err)
	}
	if !strings.Contains(err.Error(), "tint") {
		t.Errorf("error %q does not name the attribute", err)
	}

	w := MustSource(Mesh, WGSL)
	w.Vertex = strings.Replace(w.Vertex, "@location(1) color", "@location(1) colour", 1)
	if err := w.CheckLayout(); !errors.Is(err, ErrLayoutMismatch) {
		t.Errorf("renamed wgsl field: err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatal(err)
	}
}
