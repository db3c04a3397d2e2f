package tracer

import "errors"

var (
	ErrMissingBindingSource = errors.New("tracer: missing binding table source")
	ErrEmptyPassList        = errors.New("tracer: pass list contains no stages")
	ErrMissingBarrier       = errors.New("tracer: consecutive stages share reservoir data without a barrier")
	ErrNotLoaded            = errors.New("tracer: scene has not been loaded")
	ErrAlreadyLoaded        = errors.New("tracer: scene has already been loaded")
	ErrInvalidTransition    = errors.New("tracer: invalid frame state transition")
	ErrInvalidFrameSize     = errors.New("tracer: frame dimensions must be non-zero")
	ErrInvalidLayer         = errors.New("tracer: output layer out of range")
)
