package pipeline

import (
	"embed"
	"fmt"
)

//go:embed shaders/*.wgsl shaders/*.vert shaders/*.frag
var shaderFS embed.FS

// Language is a shading language.
type Language uint8

const (
	// WGSL programs are consumed by the Vulkan and WebGPU backends.
	WGSL Language = iota
	// GLSL programs target OpenGL 4.1 core.
	GLSL
)

func (l Language) String() string {
	if l == GLSL {
		return "glsl"
	}
	return "wgsl"
}

// Entry points of every WGSL program.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

// Program holds the sources for one archetype in one language.
// WGSL programs keep both stages in Vertex; Fragment is empty.
type Program struct {
	Kind     Kind
	Language Language
	Vertex   string
	Fragment string
}

// Source returns the program for kind in lang.
func Source(kind Kind, lang Language) (Program, error) {
	p := Program{Kind: kind, Language: lang}
	name := "shaders/" + kind.String()
	switch lang {
	case WGSL:
		src, err := shaderFS.ReadFile(name + ".wgsl")
		if err != nil {
			return Program{}, fmt.Errorf("pipeline: %s wgsl: %w", kind, err)
		}
		p.Vertex = string(src)
	case GLSL:
		vs, err := shaderFS.ReadFile(name + ".vert")
		if err != nil {
			return Program{}, fmt.Errorf("pipeline: %s vertex shader: %w", kind, err)
		}
		fs, err := shaderFS.ReadFile(name + ".frag")
		if err != nil {
			return Program{}, fmt.Errorf("pipeline: %s fragment shader: %w", kind, err)
		}
		p.Vertex, p.Fragment = string(vs), string(fs)
	default:
		return Program{}, fmt.Errorf("pipeline: unknown language %d", lang)
	}
	return p, nil
}

// MustSource is Source for the embedded programs, which always exist.
func MustSource(kind Kind, lang Language) Program {
	p, err := Source(kind, lang)
	if err != nil {
		panic(err)
	}
	return p
}
