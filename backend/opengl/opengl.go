//go:build !nogpu

// Package opengl implements backend.Adapter on OpenGL 4.1 core.
//
// The host window owns the context; the adapter makes it current in
// Initialize and expects every later call on the same OS thread. Instances
// are fed through per-instance attributes (VertexAttribDivisor); the
// projection is a mat4 uniform. Frame completion is observed with fence
// sync objects, one per frame slot.
package opengl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
	"github.com/gogpu/gfx2d/pipeline"
	"github.com/gogpu/gfx2d/schema"
)

func init() {
	backend.Register(backend.KindOpenGL, func() backend.Adapter { return New() })
}

// Window is what the adapter needs from the host window. *glfw.Window
// implements it.
type Window interface {
	backend.Window
	MakeContextCurrent()
	SwapBuffers()
}

var errNoContext = errors.New("window does not provide an OpenGL context")

type slot struct {
	vbo  uint32
	size uint64
	sync uintptr
}

type program struct {
	id      uint32
	vao     uint32
	proj    int32
	sampler int32
}

type glTexture struct {
	id     uint32
	levels int
}

// Adapter is the OpenGL backend.
type Adapter struct {
	backend.Lifecycle

	mu      sync.Mutex
	opts    backend.Options
	win     Window
	tracker *fence.Tracker
	ring    *fence.Ring[*slot]
	staging backend.Staging

	programs    map[pipeline.Kind]*program
	quadVBO     uint32
	quadEBO     uint32
	textures    map[backend.TextureID]*glTexture
	nextTex     backend.TextureID
	submitted   uint64
	width       int
	height      int
	serial      uint64
	desc        backend.FrameDesc
	draws       []backend.DrawCall
	vsync       bool
	swapControl func(interval int)
}

var _ backend.Adapter = (*Adapter)(nil)

// New returns an uninitialized adapter.
func New() *Adapter {
	return &Adapter{
		tracker:     fence.NewTracker(),
		programs:    make(map[pipeline.Kind]*program),
		textures:    make(map[backend.TextureID]*glTexture),
		swapControl: glfw.SwapInterval,
	}
}

// Name implements backend.Adapter.
func (a *Adapter) Name() backend.Kind { return backend.KindOpenGL }

// Initialize makes the window's context current, loads the GL entry points
// and builds one program per archetype.
func (a *Adapter) Initialize(win backend.Window, opts backend.Options) error {
	if err := a.Check("Initialize"); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	if err := pipeline.Checked(); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	w, ok := win.(Window)
	if !ok {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", errNoContext)
	}
	w.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.win, a.opts = w, opts
	for _, kind := range schema.Kinds {
		p, err := buildProgram(kind)
		if err != nil {
			a.release()
			return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
		}
		a.programs[kind] = p
	}
	a.quadVBO = newBuffer(gl.ARRAY_BUFFER, schema.AppendUnitQuad(nil))
	a.quadEBO = newBuffer(gl.ELEMENT_ARRAY_BUFFER, schema.AppendUnitQuadIndices(nil))
	a.ring = fence.NewRing(opts.FramesInFlight, func(int) *slot {
		s := &slot{}
		gl.GenBuffers(1, &s.vbo)
		return s
	})
	a.setSwapInterval(opts.VSync)
	if err := glError("Initialize"); err != nil {
		a.release()
		return backend.Wrap(backend.ErrDeviceInit, "Initialize", err)
	}
	backend.Logger().Info("opengl: context ready",
		"version", gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer", gl.GoStr(gl.GetString(gl.RENDERER)))
	return a.Enter("Initialize", backend.DeviceReady)
}

func (a *Adapter) setSwapInterval(on bool) {
	a.vsync = on
	if on {
		a.swapControl(1)
	} else {
		a.swapControl(0)
	}
}

func newBuffer(target uint32, data []byte) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(target, id)
	gl.BufferData(target, len(data), gl.Ptr(data), gl.STATIC_DRAW)
	gl.BindBuffer(target, 0)
	return id
}

func buildProgram(kind pipeline.Kind) (*program, error) {
	src, err := pipeline.Source(kind, pipeline.GLSL)
	if err != nil {
		return nil, err
	}
	id, err := link(src.Vertex, src.Fragment)
	if err != nil {
		return nil, fmt.Errorf("%s program: %w", kind, err)
	}
	p := &program{
		id:      id,
		proj:    gl.GetUniformLocation(id, gl.Str("u_proj\x00")),
		sampler: gl.GetUniformLocation(id, gl.Str("u_texture\x00")),
	}
	gl.GenVertexArrays(1, &p.vao)
	if p.sampler >= 0 {
		gl.UseProgram(id)
		gl.Uniform1i(p.sampler, 0)
		gl.UseProgram(0)
	}
	return p, nil
}

func link(vertSrc, fragSrc string) (uint32, error) {
	vert, err := compile(vertSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex: %w", err)
	}
	defer gl.DeleteShader(vert)
	frag, err := compile(fragSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("fragment: %w", err)
	}
	defer gl.DeleteShader(frag)

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vert)
	gl.AttachShader(prog, frag)
	gl.LinkProgram(prog)
	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(prog, n, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link: %s", strings.TrimRight(log, "\x00"))
	}
	return prog, nil
}

func compile(src string, kind uint32) (uint32, error) {
	shader := gl.CreateShader(kind)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)
	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		log := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(shader, n, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile: %s", strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}

func glError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%s: GL error 0x%04x", op, code)
	}
	return nil
}

// CreateSurface records the framebuffer size; the default framebuffer
// follows the window.
func (a *Adapter) CreateSurface(_ backend.Window, width, height int) error {
	if err := a.Check("CreateSurface"); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return backend.Wrap(backend.ErrSurfaceCreation, "CreateSurface", fmt.Errorf("size %dx%d", width, height))
	}
	a.mu.Lock()
	a.width, a.height = width, height
	a.mu.Unlock()
	return a.Enter("CreateSurface", backend.SurfaceReady)
}

// poll checks the sync object of serial's slot without blocking.
func (a *Adapter) poll(serial uint64) func() {
	return func() {
		s := a.ring.Slot(serial)
		if s.sync == 0 {
			a.tracker.Complete(serial)
			return
		}
		switch gl.ClientWaitSync(s.sync, gl.SYNC_FLUSH_COMMANDS_BIT, 0) {
		case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
			gl.DeleteSync(s.sync)
			s.sync = 0
			a.tracker.Complete(serial)
		}
	}
}

// CreateTexture uploads every level and applies the sampler state to the
// texture object.
func (a *Adapter) CreateTexture(desc backend.TextureDesc, rgba []byte) (backend.TextureID, error) {
	if err := a.Check("Resource"); err != nil {
		return 0, err
	}
	if desc.Width <= 0 || desc.Height <= 0 || len(rgba) != desc.Width*desc.Height*4 {
		return 0, backend.Wrap(backend.ErrResourceUpload, "CreateTexture",
			fmt.Errorf("%d bytes for %dx%d", len(rgba), desc.Width, desc.Height))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	w, h := desc.Width, desc.Height
	for level, pix := range append([][]byte{rgba}, desc.Levels...) {
		if level > 0 {
			w, h = max(w/2, 1), max(h/2, 1)
		}
		if len(pix) != w*h*4 {
			gl.DeleteTextures(1, &id)
			return 0, backend.Wrap(backend.ErrResourceUpload, "CreateTexture",
				fmt.Errorf("mip level %d: %d bytes for %dx%d", level, len(pix), w, h))
		}
		gl.TexImage2D(gl.TEXTURE_2D, int32(level), gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pix)) //nolint:gosec // sizes are small positive ints
	}
	p := samplerParams(desc.Sampler)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAX_LEVEL, int32(desc.MipCount()-1)) //nolint:gosec // bounded
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, p.min)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, p.mag)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, p.wrap)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, p.wrap)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := glError("CreateTexture"); err != nil {
		gl.DeleteTextures(1, &id)
		return 0, backend.Wrap(backend.ErrResourceUpload, "CreateTexture", err)
	}
	a.nextTex++
	a.textures[a.nextTex] = &glTexture{id: id, levels: desc.MipCount()}
	return a.nextTex, nil
}

type texParams struct {
	min, mag, wrap int32
}

func samplerParams(d backend.SamplerDesc) texParams {
	p := texParams{min: gl.LINEAR, mag: gl.LINEAR, wrap: gl.CLAMP_TO_EDGE}
	if d.Filter == backend.FilterNearest {
		p.min, p.mag = gl.NEAREST, gl.NEAREST
	}
	if d.Mipmaps {
		if d.Filter == backend.FilterNearest {
			p.min = gl.NEAREST_MIPMAP_NEAREST
		} else {
			p.min = gl.LINEAR_MIPMAP_LINEAR
		}
	}
	switch d.Wrap {
	case backend.WrapRepeat:
		p.wrap = gl.REPEAT
	case backend.WrapMirror:
		p.wrap = gl.MIRRORED_REPEAT
	}
	return p
}

// DestroyTexture implements backend.Adapter.
func (a *Adapter) DestroyTexture(id backend.TextureID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.textures[id]
	if !ok {
		return fmt.Errorf("destroy unknown texture %d: %w", id, backend.ErrInvalidState)
	}
	gl.DeleteTextures(1, &t.id)
	delete(a.textures, id)
	return nil
}

// LastFrame implements backend.Adapter.
func (a *Adapter) LastFrame() uint64 { return a.tracker.Last() }

// CompletedFrame implements backend.Adapter.
func (a *Adapter) CompletedFrame() uint64 { return a.tracker.Completed() }

// WaitIdle blocks on the sync object of the last submitted frame. It must
// be called on the context thread.
func (a *Adapter) WaitIdle(ctx context.Context) error {
	if a.submitted == 0 || a.ring == nil {
		return nil
	}
	return a.tracker.Wait(ctx, a.submitted, a.opts.Timeout(), a.poll(a.submitted))
}

// SetVSync changes the swap interval of the current context.
func (a *Adapter) SetVSync(on bool) error {
	if err := a.Check("SetVSync"); err != nil {
		return err
	}
	a.mu.Lock()
	a.setSwapInterval(on)
	a.mu.Unlock()
	return nil
}

// Shutdown deletes every GL object the adapter created. The context
// itself belongs to the window.
func (a *Adapter) Shutdown() error {
	switch a.State() {
	case backend.Shutdown:
		return nil
	case backend.Uninitialized:
		a.Set(backend.Shutdown)
		return nil
	}
	if err := a.WaitIdle(context.Background()); err != nil {
		backend.Logger().Warn("opengl: shutdown before the GPU finished", "err", err)
	}
	a.mu.Lock()
	a.release()
	a.mu.Unlock()
	a.tracker.CompleteAll()
	a.Set(backend.Shutdown)
	return nil
}

func (a *Adapter) release() {
	for id, t := range a.textures {
		gl.DeleteTextures(1, &t.id)
		delete(a.textures, id)
	}
	for kind, p := range a.programs {
		gl.DeleteVertexArrays(1, &p.vao)
		gl.DeleteProgram(p.id)
		delete(a.programs, kind)
	}
	if a.ring != nil {
		a.ring.Each(func(s *slot) {
			if s.sync != 0 {
				gl.DeleteSync(s.sync)
			}
			gl.DeleteBuffers(1, &s.vbo)
		})
		a.ring = nil
	}
	if a.quadVBO != 0 {
		gl.DeleteBuffers(1, &a.quadVBO)
		gl.DeleteBuffers(1, &a.quadEBO)
		a.quadVBO, a.quadEBO = 0, 0
	}
}
