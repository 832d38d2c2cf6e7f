package backend

import "fmt"

// stagingAlign keeps every upload aligned for vertex fetch and for the
// strictest copy alignment of the GPU backends.
const stagingAlign = 16

// Staging accumulates the transient uploads of one frame in a single
// byte slice. GPU adapters copy it into one device buffer at EndFrame, so
// every draw of the frame sees its data.
type Staging struct {
	serial uint64
	data   []byte
}

// Reset starts a new frame, keeping the allocation.
func (s *Staging) Reset(serial uint64) {
	s.serial = serial
	s.data = s.data[:0]
}

// Append copies b and returns its location.
func (s *Staging) Append(b []byte) BufferRef {
	if pad := len(s.data) % stagingAlign; pad != 0 {
		s.data = append(s.data, make([]byte, stagingAlign-pad)...)
	}
	off := uint64(len(s.data))
	s.data = append(s.data, b...)
	return BufferRef{Serial: s.serial, Offset: off, Size: uint64(len(b))}
}

// Bytes returns everything appended since Reset.
func (s *Staging) Bytes() []byte { return s.data }

// Len returns the number of staged bytes.
func (s *Staging) Len() int { return len(s.data) }

// Slice returns the bytes of ref, which must belong to the current frame.
func (s *Staging) Slice(ref BufferRef) ([]byte, error) {
	if ref.Serial != s.serial {
		return nil, fmt.Errorf("buffer from frame %d used in frame %d: %w", ref.Serial, s.serial, ErrInvalidState)
	}
	end := ref.Offset + ref.Size
	if end > uint64(len(s.data)) {
		return nil, fmt.Errorf("buffer [%d,%d) outside staged %d bytes: %w", ref.Offset, end, len(s.data), ErrInvalidState)
	}
	return s.data[ref.Offset:end], nil
}

// GrowSize returns the capacity a device buffer should be grown to so it
// holds need bytes, doubling from cur with a floor of 64 KiB.
func GrowSize(cur, need uint64) uint64 {
	if need <= cur {
		return cur
	}
	n := max(cur, 64<<10)
	for n < need {
		n *= 2
	}
	return n
}
