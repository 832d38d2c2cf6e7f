package texture

import (
	"image"
	"sync"
)

// Atlas packing defaults.
const (
	// DefaultAtlasSize is the default atlas dimension (2048x2048).
	DefaultAtlasSize = 2048

	// MinAtlasSize is the minimum atlas dimension (256x256).
	MinAtlasSize = 256

	// DefaultPadding keeps one texel between packed images so bilinear
	// sampling does not bleed across neighbours.
	DefaultPadding = 1
)

// shelf is a horizontal row of the packer.
type shelf struct {
	y      int // top edge
	height int // tallest item so far, padded
	nextX  int // next free x
}

// Packer places rectangles into a fixed-size atlas using shelf packing:
// items fill rows left to right and a new row opens below the last one
// when nothing fits.
type Packer struct {
	mu sync.Mutex

	width   int
	height  int
	padding int
	shelves []shelf

	allocCount int
	usedArea   int
}

// NewPacker returns a packer for a width×height atlas. Sizes below
// MinAtlasSize are raised to it.
func NewPacker(width, height, padding int) *Packer {
	return &Packer{
		width:   max(width, MinAtlasSize),
		height:  max(height, MinAtlasSize),
		padding: max(padding, 0),
		shelves: make([]shelf, 0, 16),
	}
}

// Size returns the atlas dimensions.
func (p *Packer) Size() (width, height int) { return p.width, p.height }

// Allocate reserves a width×height rectangle. ok is false when it does
// not fit.
func (p *Packer) Allocate(width, height int) (r image.Rectangle, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if width <= 0 || height <= 0 {
		return image.Rectangle{}, false
	}
	pw, ph := width+p.padding, height+p.padding
	if pw > p.width || ph > p.height {
		return image.Rectangle{}, false
	}

	for i := range p.shelves {
		s := &p.shelves[i]
		if s.nextX+pw > p.width {
			continue
		}
		// A shelf can only grow while it is still empty.
		if ph > s.height && s.nextX > 0 {
			continue
		}
		r = image.Rect(s.nextX, s.y, s.nextX+width, s.y+height)
		s.nextX += pw
		s.height = max(s.height, ph)
		p.account(width, height)
		return r, true
	}

	y := 0
	if n := len(p.shelves); n > 0 {
		y = p.shelves[n-1].y + p.shelves[n-1].height
	}
	if y+ph > p.height {
		return image.Rectangle{}, false
	}
	p.shelves = append(p.shelves, shelf{y: y, height: ph, nextX: pw})
	p.account(width, height)
	return image.Rect(0, y, width, y+height), true
}

func (p *Packer) account(w, h int) {
	p.allocCount++
	p.usedArea += w * h
}

// Reset clears all allocations.
func (p *Packer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shelves = p.shelves[:0]
	p.allocCount = 0
	p.usedArea = 0
}

// Utilization returns the fraction of atlas area in use.
func (p *Packer) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.usedArea) / float64(p.width*p.height)
}

// AllocCount returns the number of successful allocations.
func (p *Packer) AllocCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocCount
}
