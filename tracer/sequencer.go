package tracer

import (
	"fmt"
	"time"

	"github.com/ML200/RoyalTracer-DX/fault"
	"github.com/ML200/RoyalTracer-DX/log"
	"github.com/ML200/RoyalTracer-DX/tracer/device"
)

type State uint8

// The states of the per-frame state machine.
const (
	Idle State = iota
	StructureRefit
	BarrierWait
	Dispatching
	CopyOut
	PresentReady
	//
	numStates
)

// Implements Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case StructureRefit:
		return "StructureRefit"
	case BarrierWait:
		return "BarrierWait"
	case Dispatching:
		return "Dispatching"
	case CopyOut:
		return "CopyOut"
	case PresentReady:
		return "PresentReady"
	default:
		panic(fmt.Sprintf("tracer: unsupported frame state: %d", s))
	}
}

// Next returns the state that follows s. The entry argument points to the
// next unprocessed pass list entry or is nil once all entries have been
// processed. It is only consulted when leaving StructureRefit, BarrierWait
// or Dispatching.
func Next(s State, entry *PassEntry) (State, error) {
	switch s {
	case Idle:
		return StructureRefit, nil
	case StructureRefit, BarrierWait, Dispatching:
		switch {
		case entry == nil:
			return CopyOut, nil
		case entry.IsBarrier():
			return BarrierWait, nil
		default:
			return Dispatching, nil
		}
	case CopyOut:
		return PresentReady, nil
	case PresentReady:
		return Idle, nil
	}
	return s, fmt.Errorf("%w: from state %d", ErrInvalidTransition, s)
}

// The resources used for recording a single frame.
type FrameResources struct {
	// Record the top-level structure refit.
	Refit func(cl device.CommandList) error

	Heap        device.DescriptorHeap
	Pipeline    device.Pipeline
	ShaderTable *ShaderBindingTable

	Output       device.Texture
	RenderTarget device.Texture

	// The output layer copied to the render target.
	Layer uint32

	FrameW uint32
	FrameH uint32
}

// Timings collected while recording a frame.
type FrameTimings struct {
	// Time spent in each state.
	States [numStates]time.Duration

	Dispatches int
	Barriers   int
}

// Get the time spent in a particular state.
func (ft FrameTimings) State(s State) time.Duration {
	if s >= numStates {
		return 0
	}
	return ft.States[s]
}

// Sequencer records the commands for a frame by driving the frame state
// machine over a pass list.
type Sequencer struct {
	logger log.Logger
	passes PassList

	state   State
	timings FrameTimings
}

// Create a sequencer for the given pass list.
func NewSequencer(passes PassList) *Sequencer {
	return &Sequencer{
		logger: log.New("sequencer"),
		passes: passes,
	}
}

// Get the current state.
func (s *Sequencer) State() State {
	return s.state
}

// Get the timings of the last recorded frame.
func (s *Sequencer) Timings() FrameTimings {
	return s.timings
}

// Record the commands for a frame into cl. The sequencer must be idle and
// is left in the PresentReady state until Complete is called.
func (s *Sequencer) RecordFrame(cl device.CommandList, frame FrameResources) error {
	if s.state != Idle {
		return fault.FrameErr("record frame", fmt.Errorf("%w: frame recording started in state %s", ErrInvalidTransition, s.state))
	}
	if frame.Output == nil || frame.RenderTarget == nil || frame.ShaderTable == nil || frame.Heap == nil || frame.Pipeline == nil {
		return fault.FrameErr("record frame", ErrNotLoaded)
	}
	if frame.Layer >= OutputLayers {
		return fault.FrameErr("record frame", fmt.Errorf("%w: %d", ErrInvalidLayer, frame.Layer))
	}

	s.timings = FrameTimings{}
	var cursor, slot int
	for s.state != PresentReady {
		var entry *PassEntry
		if cursor < len(s.passes) {
			entry = &s.passes[cursor]
		}

		next, err := Next(s.state, entry)
		if err != nil {
			return fault.FrameErr("record frame", err)
		}
		if next == BarrierWait || next == Dispatching {
			cursor++
		}

		start := time.Now()
		switch next {
		case StructureRefit:
			err = s.recordRefit(cl, frame)
		case BarrierWait:
			cl.ResourceBarrier(device.UAV(nil))
			s.timings.Barriers++
		case Dispatching:
			cl.DispatchRays(frame.ShaderTable.DispatchDesc(slot, frame.FrameW, frame.FrameH))
			s.logger.Debugf("dispatch %s (slot %d)", entry.StageName(), slot)
			slot++
			s.timings.Dispatches++
		case CopyOut:
			cl.ResourceBarrier(
				device.Transition(frame.Output, device.StateUnorderedAccess, device.StateCopySource),
				device.Transition(frame.RenderTarget, device.StateRenderTarget, device.StateCopyDest),
			)
			cl.CopyTextureLayer(frame.RenderTarget, frame.Output, frame.Layer)
		case PresentReady:
			cl.ResourceBarrier(
				device.Transition(frame.RenderTarget, device.StateCopyDest, device.StateRenderTarget),
				device.Transition(frame.RenderTarget, device.StateRenderTarget, device.StatePresent),
			)
		}
		s.timings.States[next] += time.Since(start)
		s.state = next

		if err != nil {
			s.state = Idle
			return fault.FrameErr("record frame", err)
		}
	}

	return nil
}

func (s *Sequencer) recordRefit(cl device.CommandList, frame FrameResources) error {
	cl.ResourceBarrier(device.Transition(frame.RenderTarget, device.StatePresent, device.StateRenderTarget))

	if frame.Refit != nil {
		if err := frame.Refit(cl); err != nil {
			return err
		}
	}

	cl.SetDescriptorHeap(frame.Heap)
	cl.ResourceBarrier(device.Transition(frame.Output, device.StateCopySource, device.StateUnorderedAccess))
	cl.SetPipeline(frame.Pipeline)
	return nil
}

// Mark the recorded frame as presented and return to the idle state.
func (s *Sequencer) Complete() error {
	if s.state != PresentReady {
		return fault.FrameErr("complete frame", fmt.Errorf("%w: frame completed in state %s", ErrInvalidTransition, s.state))
	}
	next, err := Next(s.state, nil)
	if err != nil {
		return fault.FrameErr("complete frame", err)
	}
	s.state = next
	return nil
}

// Abandon a recorded frame, for instance after a failed submission.
func (s *Sequencer) Abort() {
	s.state = Idle
}
