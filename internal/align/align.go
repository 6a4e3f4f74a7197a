// Package align groups frames of synchronized sources and buckets the groups
// by brightness class.
package align

import (
	"context"
	"fmt"

	"github.com/five82/framecomp/internal/config"
	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/frame"
)

// progressInterval is the number of positions between progress callbacks.
const progressInterval = 1000

// FrameSource gives access to the frames of one source.
type FrameSource interface {
	NumFrames() int
	Frame(index int) (frame.Info, error)
}

// Input is one source taking part in an alignment.
type Input struct {
	Path   string
	Source FrameSource
	Sync   int
}

// Reason explains why no group was produced at a position.
type Reason string

const (
	ReasonOutOfRange    Reason = "out-of-range"
	ReasonTypeMismatch  Reason = "type-mismatch"
	ReasonDecodeFailure Reason = "decode-failure"
)

// Reasons lists every rejection reason in report order.
var Reasons = []Reason{ReasonOutOfRange, ReasonTypeMismatch, ReasonDecodeFailure}

// Group holds one frame per source for a logical position.
// Members are in source order; member k is frame Position+sync_k of source k.
type Group struct {
	Position int
	Members  []frame.Info
}

// Class returns the class shared by every member, or false for mixed groups.
func (g Group) Class() (frame.Class, bool) {
	if len(g.Members) == 0 {
		return "", false
	}
	c := g.Members[0].Class
	for _, m := range g.Members[1:] {
		if m.Class != c {
			return "", false
		}
	}
	return c, true
}

// Rejection records a discarded position.
type Rejection struct {
	Position    int
	SourceIndex int
	Reason      Reason
	Err         error
}

func (r Rejection) String() string {
	if r.Err != nil {
		return fmt.Sprintf("position %d: %s at source %d: %v", r.Position, r.Reason, r.SourceIndex, r.Err)
	}
	return fmt.Sprintf("position %d: %s at source %d", r.Position, r.Reason, r.SourceIndex)
}

// Result is the outcome of an alignment pass.
type Result struct {
	// Positions is the number of logical positions visited.
	Positions  int
	Groups     []Group
	Rejections []Rejection

	syncs      []int
	byPosition map[int]int
}

// Counts returns the number of rejections per reason.
func (r *Result) Counts() map[Reason]int {
	counts := make(map[Reason]int, len(Reasons))
	for _, rej := range r.Rejections {
		counts[rej.Reason]++
	}
	return counts
}

// Find returns the candidate group in which source sourceIndex contributes
// frame frameIndex.
func (r *Result) Find(sourceIndex, frameIndex int) (Group, bool) {
	if sourceIndex < 0 || sourceIndex >= len(r.syncs) {
		return Group{}, false
	}
	i, ok := r.byPosition[frameIndex-r.syncs[sourceIndex]]
	if !ok {
		return Group{}, false
	}
	g := r.Groups[i]
	if g.Members[sourceIndex].Index != frameIndex {
		return Group{}, false
	}
	return g, true
}

// Progress is called with the number of positions visited and the total.
type Progress func(current, total int)

// Align walks positions 0..max(NumFrames)-1 and builds a group at every
// position where all sources have a frame and the picture types agree.
//
// Picture types are compared pairwise in source order: each member must
// match the type of the member before it (or the filter's fixed type for the
// first member). A member following one of unknown type is always accepted.
func Align(ctx context.Context, inputs []Input, filter config.PictureTypeFilter, progress Progress) (*Result, error) {
	if len(inputs) < 2 {
		return nil, ferrors.NewConfigError(fmt.Sprintf("alignment needs at least 2 sources, got %d", len(inputs)), config.ErrTooFewSources)
	}

	total := 0
	syncs := make([]int, len(inputs))
	for k, in := range inputs {
		total = max(total, in.Source.NumFrames())
		syncs[k] = in.Sync
	}

	res := &Result{
		Positions:  total,
		syncs:      syncs,
		byPosition: make(map[int]int),
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, ferrors.NewCancelledError()
		}
		if progress != nil && i%progressInterval == 0 {
			progress(i, total)
		}

		group, rejection := buildGroup(i, inputs, filter)
		if rejection != nil {
			res.Rejections = append(res.Rejections, *rejection)
			continue
		}
		res.byPosition[i] = len(res.Groups)
		res.Groups = append(res.Groups, group)
	}

	if progress != nil {
		progress(total, total)
	}
	return res, nil
}

func buildGroup(i int, inputs []Input, filter config.PictureTypeFilter) (Group, *Rejection) {
	members := make([]frame.Info, len(inputs))
	agreed := filter.Initial()

	for k, in := range inputs {
		idx := i + in.Sync
		if idx < 0 || idx >= in.Source.NumFrames() {
			return Group{}, &Rejection{Position: i, SourceIndex: k, Reason: ReasonOutOfRange}
		}

		info, err := in.Source.Frame(idx)
		if err != nil {
			return Group{}, &Rejection{Position: i, SourceIndex: k, Reason: ReasonDecodeFailure, Err: err}
		}

		if filter.Enabled() {
			if agreed != frame.PictureNone && info.PictureType != agreed {
				return Group{}, &Rejection{Position: i, SourceIndex: k, Reason: ReasonTypeMismatch}
			}
			agreed = info.PictureType
		}
		members[k] = info
	}
	return Group{Position: i, Members: members}, nil
}

// Buckets maps each standard class to its groups in logical order.
type Buckets map[frame.Class][]Group

// Bucketize assigns every group whose members all share a class to that
// class's bucket. Mixed groups belong to no bucket.
func Bucketize(groups []Group) Buckets {
	b := make(Buckets, len(frame.Classes))
	for _, c := range frame.Classes {
		b[c] = nil
	}
	for _, g := range groups {
		if c, ok := g.Class(); ok {
			b[c] = append(b[c], g)
		}
	}
	return b
}
