//go:build !nogpu

package webgpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
)

// globalsSize is one column-major mat4x4<f32>.
const globalsSize = 64

type resources struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	format wgpu.TextureFormat

	globalsLayout *wgpu.BindGroupLayout
	textureLayout *wgpu.BindGroupLayout
	meshLayout    *wgpu.PipelineLayout
	texLayout     *wgpu.PipelineLayout

	modules   map[pipeline.Kind]*wgpu.ShaderModule
	pipelines map[pipeline.Key]*wgpu.RenderPipeline
	samplers  map[backend.SamplerDesc]*wgpu.Sampler

	quadVertices *wgpu.Buffer
	quadIndices  *wgpu.Buffer
}

func newResources(device *wgpu.Device, queue *wgpu.Queue, format wgpu.TextureFormat) (*resources, error) {
	r := &resources{
		device:    device,
		queue:     queue,
		format:    format,
		modules:   make(map[pipeline.Kind]*wgpu.ShaderModule),
		pipelines: make(map[pipeline.Key]*wgpu.RenderPipeline),
		samplers:  make(map[backend.SamplerDesc]*wgpu.Sampler),
	}
	if err := r.init(); err != nil {
		r.release()
		return nil, err
	}
	return r, nil
}

func (r *resources) init() error {
	var err error
	r.globalsLayout, err = r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "globals_layout",
		Entries: []wgpu.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: wgpu.ShaderStageVertex,
			Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
		}},
	})
	if err != nil {
		return fmt.Errorf("create globals layout: %w", err)
	}
	r.textureLayout, err = r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "texture_layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create texture layout: %w", err)
	}
	r.meshLayout, err = r.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "mesh_pipeline_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.globalsLayout},
	})
	if err != nil {
		return fmt.Errorf("create mesh pipeline layout: %w", err)
	}
	r.texLayout, err = r.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "textured_pipeline_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{r.globalsLayout, r.textureLayout},
	})
	if err != nil {
		return fmt.Errorf("create textured pipeline layout: %w", err)
	}
	r.quadVertices, err = r.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "unit_quad_vertices",
		Contents: schema.AppendUnitQuad(nil),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return fmt.Errorf("create quad vertices: %w", err)
	}
	indices := schema.AppendUnitQuadIndices(nil)
	if pad := len(indices) % 4; pad != 0 {
		indices = append(indices, make([]byte, 4-pad)...)
	}
	r.quadIndices, err = r.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "unit_quad_indices",
		Contents: indices,
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		return fmt.Errorf("create quad indices: %w", err)
	}
	return nil
}

// vertexLayouts converts an archetype layout: slot 0 is per vertex,
// slot 1 per instance.
func vertexLayouts(l schema.Layout) []wgpu.VertexBufferLayout {
	conv := func(s schema.Stream) wgpu.VertexBufferLayout {
		step := wgpu.VertexStepModeVertex
		if s.Step == schema.PerInstance {
			step = wgpu.VertexStepModeInstance
		}
		attrs := make([]wgpu.VertexAttribute, len(s.Attributes))
		for i, a := range s.Attributes {
			attrs[i] = wgpu.VertexAttribute{
				Format:         vertexFormat(a.Components),
				Offset:         uint64(a.Offset),
				ShaderLocation: a.Location,
			}
		}
		return wgpu.VertexBufferLayout{ArrayStride: uint64(s.Stride), StepMode: step, Attributes: attrs}
	}
	return []wgpu.VertexBufferLayout{conv(l.Vertex), conv(l.Instance)}
}

func vertexFormat(components int) wgpu.VertexFormat {
	switch components {
	case 1:
		return wgpu.VertexFormatFloat32
	case 2:
		return wgpu.VertexFormatFloat32x2
	case 3:
		return wgpu.VertexFormatFloat32x3
	default:
		return wgpu.VertexFormatFloat32x4
	}
}

func blendState(s pipeline.BlendState) *wgpu.BlendState {
	comp := func(c pipeline.Component) wgpu.BlendComponent {
		return wgpu.BlendComponent{SrcFactor: blendFactor(c.Src), DstFactor: blendFactor(c.Dst), Operation: blendOp(c.Op)}
	}
	return &wgpu.BlendState{Color: comp(s.Color), Alpha: comp(s.Alpha)}
}

func blendFactor(f pipeline.Factor) wgpu.BlendFactor {
	switch f {
	case pipeline.FactorOne:
		return wgpu.BlendFactorOne
	case pipeline.FactorSrcAlpha:
		return wgpu.BlendFactorSrcAlpha
	case pipeline.FactorOneMinusSrcAlpha:
		return wgpu.BlendFactorOneMinusSrcAlpha
	case pipeline.FactorDst:
		return wgpu.BlendFactorDst
	case pipeline.FactorDstAlpha:
		return wgpu.BlendFactorDstAlpha
	default:
		return wgpu.BlendFactorZero
	}
}

func blendOp(o pipeline.Op) wgpu.BlendOperation {
	if o == pipeline.OpReverseSubtract {
		return wgpu.BlendOperationReverseSubtract
	}
	return wgpu.BlendOperationAdd
}

func (r *resources) module(kind pipeline.Kind) (*wgpu.ShaderModule, error) {
	if m, ok := r.modules[kind]; ok {
		return m, nil
	}
	src, err := pipeline.Source(kind, pipeline.WGSL)
	if err != nil {
		return nil, err
	}
	m, err := r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          kind.String(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.Vertex},
	})
	if err != nil {
		return nil, fmt.Errorf("%s shader module: %w", kind, err)
	}
	r.modules[kind] = m
	return m, nil
}

// pipeline returns the render pipeline for key, building it on first use.
func (r *resources) pipeline(key pipeline.Key) (*wgpu.RenderPipeline, error) {
	if p, ok := r.pipelines[key]; ok {
		return p, nil
	}
	desc := pipeline.Describe(key)
	mod, err := r.module(key.Kind)
	if err != nil {
		return nil, err
	}
	layout := r.meshLayout
	if desc.Textured {
		layout = r.texLayout
	}
	p, err := r.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  key.String(),
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     mod,
			EntryPoint: pipeline.VertexEntry,
			Buffers:    vertexLayouts(desc.Layout),
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Fragment: &wgpu.FragmentState{
			Module:     mod,
			EntryPoint: pipeline.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    r.format,
				Blend:     blendState(desc.Blend),
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s pipeline: %w", key, err)
	}
	r.pipelines[key] = p
	backend.Logger().Debug("webgpu: pipeline built", "key", key.String())
	return p, nil
}

func samplerDescriptor(d backend.SamplerDesc) *wgpu.SamplerDescriptor {
	filter, mip := wgpu.FilterModeLinear, wgpu.MipmapFilterModeLinear
	if d.Filter == backend.FilterNearest {
		filter, mip = wgpu.FilterModeNearest, wgpu.MipmapFilterModeNearest
	}
	address := wgpu.AddressModeClampToEdge
	switch d.Wrap {
	case backend.WrapRepeat:
		address = wgpu.AddressModeRepeat
	case backend.WrapMirror:
		address = wgpu.AddressModeMirrorRepeat
	}
	var maxLod float32
	if d.Mipmaps {
		maxLod = 32
	}
	return &wgpu.SamplerDescriptor{
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mip,
		LodMinClamp:   0,
		LodMaxClamp:   maxLod,
		MaxAnisotropy: 1,
	}
}

func (r *resources) sampler(d backend.SamplerDesc) (*wgpu.Sampler, error) {
	if s, ok := r.samplers[d]; ok {
		return s, nil
	}
	s, err := r.device.CreateSampler(samplerDescriptor(d))
	if err != nil {
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	r.samplers[d] = s
	return s, nil
}

func (r *resources) createTexture(desc backend.TextureDesc, rgba []byte) (*gpuTexture, error) {
	if desc.Width <= 0 || desc.Height <= 0 || len(rgba) != desc.Width*desc.Height*4 {
		return nil, fmt.Errorf("%d bytes for %dx%d", len(rgba), desc.Width, desc.Height)
	}
	levels := append([][]byte{rgba}, desc.Levels...)
	w, h := desc.Width, desc.Height
	for i, pix := range levels {
		if i > 0 {
			w, h = max(w/2, 1), max(h/2, 1)
		}
		if len(pix) != w*h*4 {
			return nil, fmt.Errorf("mip level %d: %d bytes for %dx%d", i, len(pix), w, h)
		}
	}
	smp, err := r.sampler(desc.Sampler)
	if err != nil {
		return nil, err
	}
	tex, err := r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              uint32(desc.Width),  //nolint:gosec // validated positive
			Height:             uint32(desc.Height), //nolint:gosec // validated positive
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: uint32(len(levels)), //nolint:gosec // bounded by image size
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatRGBA8Unorm,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}
	t := &gpuTexture{tex: tex}
	w, h = desc.Width, desc.Height
	for i, pix := range levels {
		if i > 0 {
			w, h = max(w/2, 1), max(h/2, 1)
		}
		r.queue.WriteTexture(
			&wgpu.ImageCopyTexture{
				Texture:  tex,
				MipLevel: uint32(i), //nolint:gosec // bounded
				Aspect:   wgpu.TextureAspectAll,
			},
			pix,
			&wgpu.TextureDataLayout{BytesPerRow: uint32(4 * w), RowsPerImage: uint32(h)}, //nolint:gosec // positive
			&wgpu.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},    //nolint:gosec // positive
		)
	}
	t.view, err = tex.CreateView(nil)
	if err != nil {
		t.release()
		return nil, fmt.Errorf("create texture view: %w", err)
	}
	t.group, err = r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  desc.Label,
		Layout: r.textureLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: t.view},
			{Binding: 1, Sampler: smp},
		},
	})
	if err != nil {
		t.release()
		return nil, fmt.Errorf("create texture bind group: %w", err)
	}
	return t, nil
}

func (r *resources) release() {
	for _, p := range r.pipelines {
		p.Release()
	}
	for _, m := range r.modules {
		m.Release()
	}
	for _, s := range r.samplers {
		s.Release()
	}
	clear(r.pipelines)
	clear(r.modules)
	clear(r.samplers)
	for _, b := range []*wgpu.Buffer{r.quadVertices, r.quadIndices} {
		if b != nil {
			b.Release()
		}
	}
	if r.meshLayout != nil {
		r.meshLayout.Release()
	}
	if r.texLayout != nil {
		r.texLayout.Release()
	}
	if r.globalsLayout != nil {
		r.globalsLayout.Release()
	}
	if r.textureLayout != nil {
		r.textureLayout.Release()
	}
}
