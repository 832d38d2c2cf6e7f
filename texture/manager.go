// Package texture owns device textures: upload with format conversion,
// name lookup, atlas sub-regions and deferred release.
//
// Released textures are not destroyed immediately. The manager records
// the newest frame that could still reference them and destroys them in
// Collect once the device reports that frame complete.
package texture

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/text/cases"

	"github.com/gogpu/gfx2d/backend"
	"github.com/gogpu/gfx2d/internal/fence"
)

// PlaceholderName is the name of the built-in 1×1 white texture.
const PlaceholderName = "__white"

var (
	// ErrUnknownHandle is returned for handles that were never loaded or
	// have been released.
	ErrUnknownHandle = errors.New("texture: unknown handle")

	// ErrBadRegion is returned for sub-regions outside their texture.
	ErrBadRegion = errors.New("texture: invalid region")
)

// Handle refers to a loaded texture. The zero Handle is invalid.
type Handle uint32

// Device is the part of a backend the manager needs.
type Device interface {
	CreateTexture(desc backend.TextureDesc, rgba []byte) (backend.TextureID, error)
	DestroyTexture(id backend.TextureID) error
	LastFrame() uint64
	CompletedFrame() uint64
}

// Region is a named sub-rectangle of an atlas texture.
type Region struct {
	Texture  Handle
	Rect     image.Rectangle
	UVScale  mgl32.Vec2
	UVOffset mgl32.Vec2
}

type entry struct {
	id      backend.TextureID
	name    string
	width   int
	height  int
	sampler backend.SamplerDesc
}

// Manager tracks textures for one device. Load, Lookup and Resolve are safe
// for concurrent use; Collect and Close belong to the render goroutine.
type Manager struct {
	dev Device

	mu      sync.RWMutex
	next    Handle
	entries map[Handle]*entry
	names   map[string]Handle
	regions map[string]Region
	warned  map[string]bool
	white   Handle

	retire fence.Retirement[backend.TextureID]
}

// NewManager returns a manager with the placeholder texture loaded.
func NewManager(dev Device) (*Manager, error) {
	m := &Manager{
		dev:     dev,
		entries: make(map[Handle]*entry),
		names:   make(map[string]Handle),
		regions: make(map[string]Region),
		warned:  make(map[string]bool),
	}
	white, err := m.Load(PlaceholderName, []byte{0xFF, 0xFF, 0xFF, 0xFF}, 1, 1, RGBA8, backend.SamplerDesc{Filter: backend.FilterNearest})
	if err != nil {
		return nil, err
	}
	m.white = white
	return m, nil
}

// fold normalizes a texture name. A Caser is stateful, so one is made per
// call.
func fold(name string) string { return cases.Fold().String(name) }

// Load uploads pixels and registers them under name. Names compare
// case-insensitively; loading an existing name releases the old texture.
// Conversion errors wrap backend.ErrUnsupportedFormat and device failures
// wrap backend.ErrResourceUpload; in both cases nothing is registered.
func (m *Manager) Load(name string, pixels []byte, width, height int, format PixelFormat, sampler backend.SamplerDesc) (Handle, error) {
	rgba, err := ToRGBA(pixels, width, height, format)
	if err != nil {
		return 0, err
	}
	desc := backend.TextureDesc{Label: name, Width: width, Height: height, Sampler: sampler}
	if sampler.Mipmaps {
		desc.Levels = MipChain(rgba, width, height)
	}
	id, err := m.dev.CreateTexture(desc, rgba)
	if err != nil {
		if !errors.Is(err, backend.ErrResourceUpload) {
			err = backend.Wrap(backend.ErrResourceUpload, "texture "+name, err)
		}
		backend.Logger().Warn("texture upload failed", "name", name, "err", err)
		return 0, err
	}

	key := fold(name)
	m.mu.Lock()
	m.next++
	h := m.next
	m.entries[h] = &entry{id: id, name: name, width: width, height: height, sampler: sampler}
	old, replaced := m.names[key]
	m.names[key] = h
	delete(m.warned, key)
	m.mu.Unlock()

	if replaced {
		m.retireHandle(old)
	}
	backend.Logger().Debug("texture loaded", "name", name, "width", width, "height", height, "handle", h)
	return h, nil
}

// LoadImage uploads any image.Image.
func (m *Manager) LoadImage(name string, img image.Image, sampler backend.SamplerDesc) (Handle, error) {
	pixels, w, h := ImageToRGBA(img)
	return m.Load(name, pixels, w, h, RGBA8, sampler)
}

// LoadAtlas uploads a composed atlas under name and registers every image
// it contains as a Region.
func (m *Manager) LoadAtlas(name string, a *Atlas, sampler backend.SamplerDesc) (Handle, error) {
	h, err := m.LoadImage(name, a.Image(), sampler)
	if err != nil {
		return 0, err
	}
	w, ht := a.packer.Size()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range a.entries {
		scale, off, err := SubRegionOf(w, ht, e.rect)
		if err != nil {
			return h, err
		}
		m.regions[fold(e.name)] = Region{Texture: h, Rect: e.rect, UVScale: scale, UVOffset: off}
	}
	return h, nil
}

// Region returns a named atlas region.
func (m *Manager) Region(name string) (Region, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regions[fold(name)]
	if ok {
		if _, live := m.entries[r.Texture]; !live {
			return Region{}, false
		}
	}
	return r, ok
}

// Lookup returns the texture registered under name.
func (m *Manager) Lookup(name string) (Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.names[fold(name)]
	return h, ok
}

// Resolve is Lookup with the placeholder as fallback. A missing name is
// logged once.
func (m *Manager) Resolve(name string) Handle {
	if h, ok := m.Lookup(name); ok {
		return h
	}
	key := fold(name)
	m.mu.Lock()
	first := !m.warned[key]
	m.warned[key] = true
	m.mu.Unlock()
	if first {
		backend.Logger().Warn("texture missing, using placeholder", "name", name)
	}
	return m.white
}

// Placeholder returns the 1×1 white texture.
func (m *Manager) Placeholder() Handle { return m.white }

// Device returns the device texture of h.
func (m *Manager) Device(h Handle) (backend.TextureID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[h]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return e.id, nil
}

// Size returns the texture dimensions.
func (m *Manager) Size(h Handle) (width, height int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[h]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return e.width, e.height, nil
}

// SubRegion converts a pixel rectangle inside h into uv scale and offset.
// It does not touch the device.
func (m *Manager) SubRegion(h Handle, r image.Rectangle) (uvScale, uvOffset mgl32.Vec2, err error) {
	w, ht, err := m.Size(h)
	if err != nil {
		return mgl32.Vec2{}, mgl32.Vec2{}, err
	}
	return SubRegionOf(w, ht, r)
}

// Release unregisters h. The device texture is destroyed by a later
// Collect, once every frame begun so far has completed.
func (m *Manager) Release(h Handle) error {
	if h == m.white {
		return fmt.Errorf("texture: the placeholder cannot be released")
	}
	m.mu.Lock()
	e, ok := m.entries[h]
	if ok {
		if key := fold(e.name); m.names[key] == h {
			delete(m.names, key)
		}
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	m.retireHandle(h)
	return nil
}

func (m *Manager) retireHandle(h Handle) {
	m.mu.Lock()
	e, ok := m.entries[h]
	delete(m.entries, h)
	m.mu.Unlock()
	if !ok {
		return
	}
	after := m.dev.LastFrame()
	m.retire.Push(after, e.id)
	backend.Logger().Debug("texture retired", "name", e.name, "after_frame", after)
}

// Collect destroys released textures whose frames have completed and
// returns how many were destroyed.
func (m *Manager) Collect() int {
	ids := m.retire.Drain(m.dev.CompletedFrame())
	for _, id := range ids {
		if err := m.dev.DestroyTexture(id); err != nil {
			backend.Logger().Warn("texture destroy failed", "id", id, "err", err)
		}
	}
	return len(ids)
}

// Pending returns the number of released textures awaiting destruction.
func (m *Manager) Pending() int { return m.retire.Len() }

// Len returns the number of live textures, including the placeholder.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close destroys every texture. The caller must have waited for the
// device to go idle.
func (m *Manager) Close() error {
	var errs []error
	for _, id := range m.retire.Drain(^uint64(0)) {
		errs = append(errs, m.dev.DestroyTexture(id))
	}
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[Handle]*entry)
	clear(m.names)
	clear(m.regions)
	m.mu.Unlock()
	for _, e := range entries {
		errs = append(errs, m.dev.DestroyTexture(e.id))
	}
	return errors.Join(errs...)
}
