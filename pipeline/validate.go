package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/gogpu/naga"

	"github.com/gogpu/gfx2d/schema"
)

// ErrLayoutMismatch is returned when a shader's declared inputs disagree
// with the schema layout.
var ErrLayoutMismatch = errors.New("pipeline: shader inputs do not match layout")

// Input is one vertex input declared by a shader.
type Input struct {
	Name       string
	Location   uint32
	Components int
}

var (
	wgslStruct = regexp.MustCompile(`(?s)struct\s+(VertexInput|InstanceInput)\s*\{(.*?)\}`)
	wgslField  = regexp.MustCompile(`@location\((\d+)\)\s+(\w+)\s*:\s*(f32|vec([234])<f32>)`)
	glslInput  = regexp.MustCompile(`layout\s*\(\s*location\s*=\s*(\d+)\s*\)\s*in\s+(float|vec([234]))\s+a_(\w+)\s*;`)
)

// components maps the captured vector width to a float count; scalars
// capture nothing.
func components(n string) int {
	if n == "" {
		return 1
	}
	c, _ := strconv.Atoi(n)
	return c
}

// Inputs extracts the vertex inputs declared by a program, in location
// order as written.
func (p Program) Inputs() ([]Input, error) {
	var out []Input
	switch p.Language {
	case WGSL:
		blocks := wgslStruct.FindAllStringSubmatch(p.Vertex, -1)
		if len(blocks) == 0 {
			return nil, fmt.Errorf("pipeline: %s: no input structs", p.Kind)
		}
		for _, b := range blocks {
			for _, f := range wgslField.FindAllStringSubmatch(b[2], -1) {
				loc, _ := strconv.ParseUint(f[1], 10, 32)
				out = append(out, Input{Name: f[2], Location: uint32(loc), Components: components(f[4])})
			}
		}
	case GLSL:
		for _, f := range glslInput.FindAllStringSubmatch(p.Vertex, -1) {
			loc, _ := strconv.ParseUint(f[1], 10, 32)
			out = append(out, Input{Name: f[4], Location: uint32(loc), Components: components(f[3])})
		}
	}
	return out, nil
}

// CheckLayout compares the program's inputs against the schema layout of
// its archetype and reports every difference.
func (p Program) CheckLayout() error {
	inputs, err := p.Inputs()
	if err != nil {
		return err
	}
	want := schema.LayoutOf(p.Kind).Attributes()
	byLoc := make(map[uint32]Input, len(inputs))
	for _, in := range inputs {
		byLoc[in.Location] = in
	}
	var problems []string
	for _, a := range want {
		in, ok := byLoc[a.Location]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("location %d (%s) not declared", a.Location, a.Name))
		case in.Name != a.Name:
			problems = append(problems, fmt.Sprintf("location %d named %q, want %q", a.Location, in.Name, a.Name))
		case in.Components != a.Components:
			problems = append(problems, fmt.Sprintf("%s has %d components, want %d", a.Name, in.Components, a.Components))
		}
		delete(byLoc, a.Location)
	}
	for loc, in := range byLoc {
		problems = append(problems, fmt.Sprintf("unexpected input %s at location %d", in.Name, loc))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s %s: %s", ErrLayoutMismatch, p.Kind, p.Language, strings.Join(problems, "; "))
	}
	return nil
}

// Compile checks that a WGSL program translates to SPIR-V.
// GLSL programs are compiled by the driver and always pass here.
func (p Program) Compile() error {
	if p.Language != WGSL {
		return nil
	}
	if _, err := naga.Compile(p.Vertex); err != nil {
		return fmt.Errorf("pipeline: compile %s: %w", p.Kind, err)
	}
	return nil
}

var validated = sync.OnceValue(Validate)

// Checked returns the result of Validate, computed once per process.
// GPU adapters call it from Initialize before building pipelines.
func Checked() error { return validated() }

// Validate checks every embedded program against the schema and compiles
// the WGSL ones.
func Validate() error {
	var errs []error
	for _, kind := range schema.Kinds {
		for _, lang := range []Language{WGSL, GLSL} {
			p, err := Source(kind, lang)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := p.CheckLayout(); err != nil {
				errs = append(errs, err)
			}
			if err := p.Compile(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
