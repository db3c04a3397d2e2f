package tracer

import (
	"fmt"
	"path"
	"strings"
)

// The pass list entry that requests a UAV barrier between stages.
const BarrierMarker = "barrier"

// Stages whose name starts with this prefix read and write the reservoir
// and sample history buffers.
const reservoirStagePrefix = "Pass_"

// A single pass list entry: either a shader library implementing a
// ray-generation stage or a barrier marker.
type PassEntry string

// Returns true if this entry is a barrier marker.
func (e PassEntry) IsBarrier() bool {
	return string(e) == BarrierMarker
}

// Get the exported ray-generation symbol: the file name without its
// directory and extension.
func (e PassEntry) StageName() string {
	base := path.Base(strings.ReplaceAll(string(e), `\`, "/"))
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	return base
}

// A ray-generation stage and its shader binding table slot.
type Stage struct {
	Slot int
	Path string
	Name string
}

// An ordered list of dispatch stages and barriers.
type PassList []PassEntry

// Create a pass list from a list of entries.
func NewPassList(entries ...string) PassList {
	pl := make(PassList, len(entries))
	for i, entry := range entries {
		pl[i] = PassEntry(entry)
	}
	return pl
}

// Parse a comma-separated pass list.
func ParsePassList(list string) (PassList, error) {
	var pl PassList
	for index, token := range strings.Split(list, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, fmt.Errorf("tracer: empty entry %d in pass list %q", index, list)
		}
		pl = append(pl, PassEntry(token))
	}
	if len(pl.Stages()) == 0 {
		return nil, ErrEmptyPassList
	}
	return pl, nil
}

// The default pass list: initial direct lighting followed by shading.
func DefaultPassList() PassList {
	return NewPassList("Pass_init_di_v7.hlsl", BarrierMarker, "Pass_shading_v7.hlsl")
}

// The full ReSTIR pass list with temporal and spatial reuse of direct and
// indirect lighting reservoirs.
func ReSTIRPassList() PassList {
	return NewPassList(
		"Pass_init_di_v7.hlsl",
		BarrierMarker,
		"Pass_init_gi_v7.hlsl",
		BarrierMarker,
		"Pass_temp_di_v7.hlsl",
		"Pass_temp_gi_v7.hlsl",
		BarrierMarker,
		"Pass_spat_di_v7.hlsl",
		"Pass_spat_gi_v7.hlsl",
		BarrierMarker,
		"Pass_shading_v7.hlsl",
	)
}

// Get the non-barrier entries in order. The position of a stage in the
// returned list is its ray-generation slot.
func (pl PassList) Stages() []Stage {
	var stages []Stage
	for _, entry := range pl {
		if entry.IsBarrier() {
			continue
		}
		stages = append(stages, Stage{Slot: len(stages), Path: string(entry), Name: entry.StageName()})
	}
	return stages
}

// Validate checks that stages touching the same reservoir data are separated
// by a barrier. Stages that name a lighting kind (di or gi) only touch the
// reservoirs of that kind; other reservoir stages touch all of them.
func (pl PassList) Validate() error {
	if len(pl.Stages()) == 0 {
		return ErrEmptyPassList
	}

	var group []string
	for _, entry := range pl {
		if entry.IsBarrier() {
			group = group[:0]
			continue
		}

		name := entry.StageName()
		for _, prev := range group {
			if sharesReservoirs(prev, name) {
				return fmt.Errorf("%w: %s and %s", ErrMissingBarrier, prev, name)
			}
		}
		group = append(group, name)
	}
	return nil
}

func (pl PassList) String() string {
	entries := make([]string, len(pl))
	for i, entry := range pl {
		entries[i] = string(entry)
	}
	return strings.Join(entries, ",")
}

// Get the reservoir kind (di or gi) of a stage. The second return value is
// false for stages that do not touch reservoirs.
func reservoirKind(stage string) (string, bool) {
	if !strings.HasPrefix(stage, reservoirStagePrefix) {
		return "", false
	}
	for _, token := range strings.Split(stage, "_") {
		if token == "di" || token == "gi" {
			return token, true
		}
	}
	return "", true
}

func sharesReservoirs(a, b string) bool {
	kindA, okA := reservoirKind(a)
	kindB, okB := reservoirKind(b)
	if !okA || !okB {
		return false
	}
	return kindA == "" || kindB == "" || kindA == kindB
}
