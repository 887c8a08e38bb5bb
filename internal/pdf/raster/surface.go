package raster

import (
	"errors"
	"image"
	"sync"
)

// ErrSurfaceBusy is returned when a surface is acquired while a previous
// lease has not been released.
var ErrSurfaceBusy = errors.New("raster surface is already leased")

// Surface is the drawing buffer shared by consecutive page renders. Only one
// page may hold it at a time: Acquire hands out a cleared RGBA image and
// Release returns it once its pixels have been read out.
type Surface struct {
	mu     sync.Mutex
	buf    []uint8
	leased bool
	leases int
}

// NewSurface returns an idle surface
func NewSurface() *Surface {
	return &Surface{}
}

// Acquire leases the surface as a width×height image filled with opaque white.
// The backing buffer is reused between leases but never carries pixels over.
func (s *Surface) Acquire(width, height int) (*image.RGBA, error) {
	if width < 1 || height < 1 {
		return nil, errors.New("surface dimensions must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leased {
		return nil, ErrSurfaceBusy
	}

	size := 4 * width * height
	if size/4/height != width {
		return nil, errors.New("surface dimensions overflow")
	}
	if cap(s.buf) < size {
		s.buf = make([]uint8, size)
	}
	s.buf = s.buf[:size]
	for i := range s.buf {
		s.buf[i] = 0xff
	}

	s.leased = true
	s.leases++

	return &image.RGBA{
		Pix:    s.buf,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// Release ends the current lease. Any image handed out by Acquire must not be
// used afterwards.
func (s *Surface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leased = false
}

// Leased reports whether the surface is currently held
func (s *Surface) Leased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leased
}

// Leases returns the number of leases granted so far
func (s *Surface) Leases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leases
}
