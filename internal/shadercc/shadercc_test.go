package shadercc

import (
	"testing"

	"github.com/gogpu/gfx2d/pipeline"
)

func TestSPIRVMagic(t *testing.T) {
	for _, kind := range []pipeline.Kind{pipeline.Sprite, pipeline.Mesh, pipeline.TexturedMesh} {
		words, err := SPIRV(kind)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if len(words) == 0 || words[0] != 0x07230203 {
			t.Errorf("%s: missing SPIR-V magic", kind)
		}
	}
}

func TestToSPIRVRejectsInvalidSource(t *testing.T) {
	if _, err := ToSPIRV("fn broken("); err == nil {
		t.Error("expected error for invalid WGSL")
	}
}

func TestResourcesDestroyNil(t *testing.T) {
	var r Resources
	r.Destroy()
}
