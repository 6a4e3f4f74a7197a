// Package sample picks frame groups from buckets and tracks which frames
// have already been taken.
package sample

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"

	"github.com/five82/framecomp/internal/align"
	"github.com/five82/framecomp/internal/frame"
)

// Category is a selection category.
type Category string

const (
	CategoryCustom Category = "custom"
	CategoryDark   Category = Category(frame.ClassDark)
	CategoryLight  Category = Category(frame.ClassLight)
	CategoryRandom Category = Category(frame.ClassRandom)
)

// Order is the order in which categories are exported and published.
var Order = []Category{CategoryCustom, CategoryDark, CategoryLight, CategoryRandom}

// Title returns the category with an upper-case first letter.
func (c Category) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// GroupName returns the name given to a published group of this category.
func (c Category) GroupName() string {
	return c.Title() + " scene"
}

// Key identifies a frame of a source.
type Key struct {
	Path  string
	Index int
}

// Warning is a non-fatal selection problem.
type Warning struct {
	Category Category
	Message  string
}

func (w Warning) String() string {
	return w.Message
}

// Pick returns min(k, len(groups)) distinct groups chosen uniformly without
// replacement, in logical order. A nil rng uses the process-wide source.
func Pick(groups []align.Group, k int, rng *rand.Rand) []align.Group {
	if k <= 0 || len(groups) == 0 {
		return nil
	}
	k = min(k, len(groups))

	idx := perm(rng, len(groups))[:k]
	sort.Ints(idx)

	picked := make([]align.Group, k)
	for i, j := range idx {
		picked[i] = groups[j]
	}
	return picked
}

// PickIndices returns min(k, available) distinct indices from [0, n) that
// are not in exclude, in ascending order.
func PickIndices(n, k int, exclude []int, rng *rand.Rand) []int {
	skip := make(map[int]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	candidates := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !skip[i] {
			candidates = append(candidates, i)
		}
	}
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	out := make([]int, k)
	for i, j := range perm(rng, len(candidates))[:k] {
		out[i] = candidates[j]
	}
	sort.Ints(out)
	return out
}

func perm(rng *rand.Rand, n int) []int {
	if rng == nil {
		return rand.Perm(n)
	}
	return rng.Perm(n)
}

// Finder looks up the candidate group in which a source contributes a frame.
type Finder interface {
	Find(sourceIndex, frameIndex int) (align.Group, bool)
}

// Selection holds the chosen groups per category.
type Selection struct {
	Groups map[Category][]align.Group
}

// Len returns the number of chosen groups.
func (s *Selection) Len() int {
	n := 0
	for _, g := range s.Groups {
		n += len(g)
	}
	return n
}

// Chosen is a group with the category it was chosen for.
type Chosen struct {
	Category Category
	Group    align.Group
}

// Ordered returns the chosen groups in publish order.
func (s *Selection) Ordered() []Chosen {
	var out []Chosen
	for _, c := range Order {
		for _, g := range s.Groups[c] {
			out = append(out, Chosen{Category: c, Group: g})
		}
	}
	return out
}

// Selector chooses groups and makes sure no frame of any source is chosen twice.
type Selector struct {
	paths     []string
	finder    Finder
	rng       *rand.Rand
	claimed   map[Key]struct{}
	selection Selection
	warnings  []Warning
}

// NewSelector creates a selector over sources identified by paths, in
// alignment order. finder resolves custom frames; rng may be nil.
func NewSelector(paths []string, finder Finder, rng *rand.Rand) *Selector {
	return &Selector{
		paths:     paths,
		finder:    finder,
		rng:       rng,
		claimed:   make(map[Key]struct{}),
		selection: Selection{Groups: make(map[Category][]align.Group)},
	}
}

// SelectBucket picks up to k groups of a bucket. An empty bucket adds a
// warning; a request larger than the bucket is clamped.
func (s *Selector) SelectBucket(category Category, groups []align.Group, k int) []align.Group {
	if k < 1 {
		return nil
	}
	if len(groups) == 0 {
		s.warn(category, fmt.Sprintf("No %s scene to capture, skipping", category))
		return nil
	}

	picked := Pick(groups, k, s.rng)
	for _, g := range picked {
		s.claim(category, g)
	}
	return picked
}

// SelectCustom claims the group in which source sourceIndex shows frame
// frameIndex. It reports false, with a warning, when that frame was already
// chosen or has no candidate group.
func (s *Selector) SelectCustom(sourceIndex, frameIndex int) (align.Group, bool) {
	name := fmt.Sprintf("source %d", sourceIndex)
	if sourceIndex >= 0 && sourceIndex < len(s.paths) {
		name = filepath.Base(s.paths[sourceIndex])
		if s.isClaimed(Key{Path: s.paths[sourceIndex], Index: frameIndex}) {
			s.warn(CategoryCustom, fmt.Sprintf("Custom frame selected (index: %d - %s) already used", frameIndex, name))
			return align.Group{}, false
		}
	}

	g, ok := s.finder.Find(sourceIndex, frameIndex)
	if !ok {
		s.warn(CategoryCustom, fmt.Sprintf("Custom frame selected (index: %d - %s) not available", frameIndex, name))
		return align.Group{}, false
	}

	s.claim(CategoryCustom, g)
	return g, true
}

// Unavailable records a custom frame that cannot be resolved, for example
// because its source was dropped.
func (s *Selector) Unavailable(name string, frameIndex int) {
	s.warn(CategoryCustom, fmt.Sprintf("Custom frame selected (index: %d - %s) not available", frameIndex, name))
}

// Selection returns the groups chosen so far.
func (s *Selector) Selection() *Selection {
	return &s.selection
}

// Warnings returns the warnings collected so far.
func (s *Selector) Warnings() []Warning {
	return s.warnings
}

// isClaimed reports whether a frame has been chosen.
func (s *Selector) isClaimed(k Key) bool {
	_, ok := s.claimed[k]
	return ok
}

func (s *Selector) claim(category Category, g align.Group) {
	for i, m := range g.Members {
		if i < len(s.paths) {
			s.claimed[Key{Path: s.paths[i], Index: m.Index}] = struct{}{}
		}
	}
	s.selection.Groups[category] = append(s.selection.Groups[category], g)
}

func (s *Selector) warn(category Category, message string) {
	s.warnings = append(s.warnings, Warning{Category: category, Message: message})
}
