// Package shadercc compiles the embedded WGSL programs to SPIR-V and
// creates HAL shader modules from them.
package shadercc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gfx2d/pipeline"
)

var cache sync.Map // pipeline.Kind -> []uint32

// ToSPIRV compiles WGSL source to SPIR-V words.
func ToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("shadercc: compile: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("shadercc: SPIR-V length %d is not word aligned", len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// SPIRV returns the compiled program for kind. Results are cached per
// process.
func SPIRV(kind pipeline.Kind) ([]uint32, error) {
	if v, ok := cache.Load(kind); ok {
		return v.([]uint32), nil
	}
	p, err := pipeline.Source(kind, pipeline.WGSL)
	if err != nil {
		return nil, err
	}
	words, err := ToSPIRV(p.Vertex)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	cache.Store(kind, words)
	return words, nil
}

// Module creates a HAL shader module for kind.
func Module(device hal.Device, kind pipeline.Kind) (hal.ShaderModule, error) {
	words, err := SPIRV(kind)
	if err != nil {
		return nil, err
	}
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  kind.String() + "_shader",
		Source: hal.ShaderSource{SPIRV: words},
	})
}

// Resources groups the objects backing one render pipeline so they can be
// released together.
type Resources struct {
	Device      hal.Device
	Module      hal.ShaderModule
	Layout      hal.PipelineLayout
	BindLayouts []hal.BindGroupLayout
	Pipelines   []hal.RenderPipeline
}

// Destroy releases pipelines before the layouts and module they use.
func (r *Resources) Destroy() {
	if r.Device == nil {
		return
	}
	for _, p := range r.Pipelines {
		if p != nil {
			r.Device.DestroyRenderPipeline(p)
		}
	}
	if r.Layout != nil {
		r.Device.DestroyPipelineLayout(r.Layout)
	}
	for _, l := range r.BindLayouts {
		if l != nil {
			r.Device.DestroyBindGroupLayout(l)
		}
	}
	if r.Module != nil {
		r.Device.DestroyShaderModule(r.Module)
	}
	*r = Resources{}
}
