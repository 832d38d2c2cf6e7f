package xform

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

const eps = 1e-5

func near(a, b float32) bool { return math.Abs(float64(a-b)) <= eps }

func TestOrthoProjectionCorners(t *testing.T) {
	sizes := [][2]float32{{1, 1}, {640, 480}, {1920, 1080}, {3, 7777}, {0.5, 0.25}}
	for _, s := range sizes {
		w, h := s[0], s[1]
		p, err := OrthoProjection(w, h)
		if err != nil {
			t.Fatalf("OrthoProjection(%v,%v): %v", w, h, err)
		}
		corners := []struct{ in, want mgl32.Vec2 }{
			{mgl32.Vec2{-w / 2, -h / 2}, mgl32.Vec2{-1, -1}},
			{mgl32.Vec2{w / 2, -h / 2}, mgl32.Vec2{1, -1}},
			{mgl32.Vec2{w / 2, h / 2}, mgl32.Vec2{1, 1}},
			{mgl32.Vec2{-w / 2, h / 2}, mgl32.Vec2{-1, 1}},
		}
		for _, c := range corners {
			got := Apply(p, c.in)
			if !near(got[0], c.want[0]) || !near(got[1], c.want[1]) {
				t.Errorf("%vx%v: corner %v -> %v, want %v", w, h, c.in, got, c.want)
			}
		}
	}
}

func TestOrthoProjectionRejectsDegenerate(t *testing.T) {
	inf := float32(math.Inf(1))
	nan := float32(math.NaN())
	for _, s := range [][2]float32{{0, 10}, {10, 0}, {-1, 10}, {10, -5}, {0, 0}, {inf, 1}, {nan, 1}} {
		p, err := OrthoProjection(s[0], s[1])
		if !errors.Is(err, ErrDegenerate) {
			t.Errorf("OrthoProjection(%v,%v) err = %v, want ErrDegenerate", s[0], s[1], err)
		}
		for _, v := range p {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Errorf("OrthoProjection(%v,%v) returned non-finite matrix %v", s[0], s[1], p)
				break
			}
		}
	}
}

func TestOrthoBoundsRejectsEmpty(t *testing.T) {
	if _, err := OrthoBounds(1, 1, 0, 1); !errors.Is(err, ErrDegenerate) {
		t.Errorf("err = %v, want ErrDegenerate", err)
	}
	p, err := OrthoBounds(0, 100, 0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if got := Apply(p, mgl32.Vec2{100, 50}); !near(got[0], 1) || !near(got[1], 1) {
		t.Errorf("top-right -> %v, want (1,1)", got)
	}
}

func TestRotationToSinCosMatchesRotation(t *testing.T) {
	for deg := -720; deg <= 720; deg += 15 {
		theta := float32(deg) * math.Pi / 180
		sin, cos := RotationToSinCos(theta)
		wantX := mgl32.Vec2{float32(math.Cos(float64(theta))), float32(math.Sin(float64(theta)))}
		wantY := mgl32.Vec2{float32(-math.Sin(float64(theta))), float32(math.Cos(float64(theta)))}
		gotX := Rotate(mgl32.Vec2{1, 0}, sin, cos)
		gotY := Rotate(mgl32.Vec2{0, 1}, sin, cos)
		if !near(gotX[0], wantX[0]) || !near(gotX[1], wantX[1]) {
			t.Errorf("θ=%d°: R·x = %v, want %v", deg, gotX, wantX)
		}
		if !near(gotY[0], wantY[0]) || !near(gotY[1], wantY[1]) {
			t.Errorf("θ=%d°: R·y = %v, want %v", deg, gotY, wantY)
		}
	}
}

func TestRotationToSinCosPeriodic(t *testing.T) {
	for _, theta := range []float32{0, 0.3, 1, 2.5, -1.2, 3.14159} {
		s1, c1 := RotationToSinCos(theta)
		s2, c2 := RotationToSinCos(theta + 2*math.Pi)
		if !near(s1, s2) || !near(c1, c2) {
			t.Errorf("θ=%v: (%v,%v) != (%v,%v) at θ+2π", theta, s1, c1, s2, c2)
		}
	}
}

func TestModelMatrix(t *testing.T) {
	m, err := ModelMatrix(mgl32.Vec2{10, 20}, mgl32.Vec2{4, 2}, math.Pi/2)
	if err != nil {
		t.Fatal(err)
	}
	// Local (0.5, 0) scales to (2, 0), rotates to (0, 2), translates to (10, 22).
	got := Apply(m, mgl32.Vec2{0.5, 0})
	if !near(got[0], 10) || !near(got[1], 22) {
		t.Errorf("Apply = %v, want (10,22)", got)
	}
	ref := mgl32.Translate3D(10, 20, 0).Mul4(mgl32.HomogRotate3DZ(math.Pi / 2)).Mul4(mgl32.Scale3D(4, 2, 1))
	if !m.ApproxEqualThreshold(ref, eps) {
		t.Errorf("ModelMatrix = %v, want T*R*S %v", m, ref)
	}
}

func TestModelMatrixDegenerate(t *testing.T) {
	if _, err := ModelMatrix(mgl32.Vec2{}, mgl32.Vec2{float32(math.NaN()), 1}, 0); !errors.Is(err, ErrDegenerate) {
		t.Errorf("err = %v, want ErrDegenerate", err)
	}
	m, err := ModelMatrix(mgl32.Vec2{1, 1}, mgl32.Vec2{0, 0}, 0)
	if err != nil {
		t.Fatalf("zero size: %v", err)
	}
	if got := Apply(m, mgl32.Vec2{0.5, 0.5}); got != (mgl32.Vec2{1, 1}) {
		t.Errorf("zero size collapses to %v, want center", got)
	}
}

func TestDecompose2D(t *testing.T) {
	m, err := ModelMatrix(mgl32.Vec2{-3, 5}, mgl32.Vec2{8, 6}, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	c, s, sc := Decompose2D(m)
	sin, cos := RotationToSinCos(0.7)
	if !near(c[0], -3) || !near(c[1], 5) {
		t.Errorf("center = %v", c)
	}
	if !near(s[0], 8) || !near(s[1], 6) {
		t.Errorf("size = %v", s)
	}
	if !near(sc[0], sin) || !near(sc[1], cos) {
		t.Errorf("sinCos = %v, want (%v,%v)", sc, sin, cos)
	}
}

func TestDecompose2DZeroScale(t *testing.T) {
	_, s, sc := Decompose2D(mgl32.Mat4{})
	for _, v := range []float32{s[0], s[1], sc[0], sc[1]} {
		if math.IsNaN(float64(v)) {
			t.Fatalf("Decompose2D(0) produced NaN: size=%v sinCos=%v", s, sc)
		}
	}
}

func TestViewportResize(t *testing.T) {
	var v Viewport
	if _, ok := v.Projection(); ok {
		t.Fatal("zero Viewport should not be ready")
	}
	if err := v.Resize(800, 600); err != nil {
		t.Fatal(err)
	}
	if err := v.Resize(0, 600); !errors.Is(err, ErrDegenerate) {
		t.Errorf("Resize(0,600) err = %v", err)
	}
	if w, h := v.Size(); w != 800 || h != 600 {
		t.Errorf("size after failed resize = %dx%d, want 800x600", w, h)
	}
	p, ok := v.Projection()
	if !ok {
		t.Fatal("projection not ready")
	}
	if got := Apply(p, mgl32.Vec2{400, 300}); !near(got[0], 1) || !near(got[1], 1) {
		t.Errorf("corner -> %v", got)
	}
}
