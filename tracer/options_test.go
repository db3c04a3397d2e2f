package tracer

import (
	"errors"
	"testing"
)

func TestOptionsFrameSize(t *testing.T) {
	type spec struct {
		w, h      uint32
		expErr    bool
		expPixels int
	}

	specs := []spec{
		{w: 8, h: 4, expPixels: 32},
		{w: MaxFrameDim, h: MaxFrameDim, expPixels: MaxFrameDim * MaxFrameDim},
		{w: 0, h: 4, expErr: true},
		{w: 8, h: 0, expErr: true},
		{w: MaxFrameDim + 1, h: 4, expErr: true},
		{w: 4294967295, h: 4294967295, expErr: true},
	}

	for specIndex, s := range specs {
		opts := DefaultOptions()
		opts.FrameW, opts.FrameH = s.w, s.h

		err := opts.Validate()
		if s.expErr {
			if !errors.Is(err, ErrInvalidFrameSize) {
				t.Fatalf("[spec %d] expected ErrInvalidFrameSize for %dx%d; got %v", specIndex, s.w, s.h, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		if got := opts.Pixels(); got != s.expPixels {
			t.Fatalf("[spec %d] expected %d pixels; got %d", specIndex, s.expPixels, got)
		}
	}
}
