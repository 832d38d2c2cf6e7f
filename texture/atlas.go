package texture

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ErrAtlasFull is returned when an image does not fit in the atlas.
var ErrAtlasFull = errors.New("texture: atlas is full")

// Atlas composes many small images into one texture on the CPU. Load it
// with Manager.LoadAtlas; each added image then becomes a named Region.
type Atlas struct {
	packer  *Packer
	canvas  *image.NRGBA
	entries []atlasEntry
}

type atlasEntry struct {
	name string
	rect image.Rectangle
}

// NewAtlas returns an empty atlas. Zero sizes use DefaultAtlasSize.
func NewAtlas(width, height int) *Atlas {
	if width <= 0 {
		width = DefaultAtlasSize
	}
	if height <= 0 {
		height = DefaultAtlasSize
	}
	p := NewPacker(width, height, DefaultPadding)
	w, h := p.Size()
	return &Atlas{packer: p, canvas: image.NewNRGBA(image.Rect(0, 0, w, h))}
}

// Add packs img under name and returns where it landed.
func (a *Atlas) Add(name string, img image.Image) (image.Rectangle, error) {
	b := img.Bounds()
	r, ok := a.packer.Allocate(b.Dx(), b.Dy())
	if !ok {
		return image.Rectangle{}, fmt.Errorf("%w: %s (%dx%d)", ErrAtlasFull, name, b.Dx(), b.Dy())
	}
	draw.Copy(a.canvas, r.Min, img, b, draw.Src, nil)
	a.entries = append(a.entries, atlasEntry{name: name, rect: r})
	return r, nil
}

// Len returns the number of packed images.
func (a *Atlas) Len() int { return len(a.entries) }

// Image returns the composed atlas.
func (a *Atlas) Image() *image.NRGBA { return a.canvas }

// Utilization returns the fraction of atlas area in use.
func (a *Atlas) Utilization() float64 { return a.packer.Utilization() }
