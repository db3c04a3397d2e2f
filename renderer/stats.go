package renderer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ML200/RoyalTracer-DX/tracer"
	"github.com/olekukonko/tablewriter"
)

// The frame states whose timings are reported.
var reportedStates = []tracer.State{
	tracer.StructureRefit,
	tracer.BarrierWait,
	tracer.Dispatching,
	tracer.CopyOut,
	tracer.PresentReady,
}

type FrameStats struct {
	// Number of frames rendered so far.
	Frames uint64

	// Stats of the last frame.
	Last tracer.FrameStats

	// Total render time for all frames.
	RenderTime time.Duration
}

// Build a tabular representation of the last frame timings.
func (fs FrameStats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"State", "Count", "Record time"})

	for _, state := range reportedStates {
		count := "1"
		switch state {
		case tracer.Dispatching:
			count = fmt.Sprint(fs.Last.Timings.Dispatches)
		case tracer.BarrierWait:
			count = fmt.Sprint(fs.Last.Timings.Barriers)
		}
		table.Append([]string{state.String(), count, fs.Last.Timings.State(state).String()})
	}
	table.Append([]string{"Submit", "1", fs.Last.SubmitTime.String()})
	table.SetFooter([]string{"Frame", fmt.Sprint(fs.Frames), fs.Last.RenderTime.String()})

	table.Render()
	return buf.String()
}

func frameStats(tr *tracer.Tracer, total time.Duration) FrameStats {
	st := tr.Stats()
	return FrameStats{
		Frames:     st.Frames,
		Last:       st.LastFrame,
		RenderTime: total,
	}
}
