package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/five82/framecomp/internal/frame"
)

// Rational is a frame rate expressed as num/den.
type Rational struct {
	Num int
	Den int
}

// ParseFrameRate parses "24000/1001" or "24" into a Rational.
func ParseFrameRate(s string) (Rational, error) {
	s = strings.TrimSpace(s)
	numStr, denStr, found := strings.Cut(s, "/")
	if !found {
		denStr = "1"
	}

	num, err := strconv.Atoi(strings.TrimSpace(numStr))
	if err != nil {
		return Rational{}, fmt.Errorf("%w: '%s'", ErrInvalidFrameRate, s)
	}
	den, err := strconv.Atoi(strings.TrimSpace(denStr))
	if err != nil {
		return Rational{}, fmt.Errorf("%w: '%s'", ErrInvalidFrameRate, s)
	}

	r := Rational{Num: num, Den: den}
	if !r.Valid() {
		return Rational{}, fmt.Errorf("%w: '%s' must be positive", ErrInvalidFrameRate, s)
	}
	return r, nil
}

// Valid reports whether both terms are positive.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Float returns the rate as a float.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// String returns the rate as num/den.
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// SameMillis reports whether two rates are equal once truncated to three decimals.
// Sources already running at the requested rate are left untouched.
func (r Rational) SameMillis(other Rational) bool {
	return int64(r.Float()*1000) == int64(other.Float()*1000)
}

// UnmarshalYAML accepts [num, den], "num/den" or a plain integer.
func (r *Rational) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var pair []int
	if err := unmarshal(&pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("%w: expected [num, den], got %v", ErrInvalidFrameRate, pair)
		}
		*r = Rational{Num: pair[0], Den: pair[1]}
		if !r.Valid() {
			return fmt.Errorf("%w: %v must be positive", ErrInvalidFrameRate, pair)
		}
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrameRate, err)
	}
	parsed, err := ParseFrameRate(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Source is one input video.
type Source struct {
	Path string    `yaml:"file"`
	FPS  *Rational `yaml:"fps,omitempty"`
	Sync int       `yaml:"sync,omitempty"`
}

// CustomFrame is an explicitly requested (source, frame) pair.
type CustomFrame struct {
	SourceIndex int `yaml:"file_index"`
	FrameIndex  int `yaml:"frame_index"`
}

// ParseCustomFrame parses "source:frame" or a bare "frame" (source 0).
func ParseCustomFrame(s string) (CustomFrame, error) {
	s = strings.TrimSpace(s)
	srcStr, frameStr, found := strings.Cut(s, ":")
	if !found {
		srcStr, frameStr = "0", s
	}

	src, err := strconv.Atoi(strings.TrimSpace(srcStr))
	if err != nil || src < 0 {
		return CustomFrame{}, fmt.Errorf("%w: '%s'", ErrInvalidCustomFrame, s)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(frameStr))
	if err != nil || idx < 0 {
		return CustomFrame{}, fmt.Errorf("%w: '%s'", ErrInvalidCustomFrame, s)
	}
	return CustomFrame{SourceIndex: src, FrameIndex: idx}, nil
}

// FilterMode selects how picture types are compared across sources.
type FilterMode string

const (
	// FilterAny keeps groups whose members agree with each other, whatever the type.
	FilterAny FilterMode = "any"
	// FilterFixed keeps groups whose members all have a given type.
	FilterFixed FilterMode = "fixed"
	// FilterOff disables picture type filtering.
	FilterOff FilterMode = "off"
)

// PictureTypeFilter is the picture type agreement policy.
type PictureTypeFilter struct {
	Mode FilterMode
	Type frame.PictureType
}

// Enabled reports whether picture types are checked at all.
func (f PictureTypeFilter) Enabled() bool {
	return f.Mode != FilterOff
}

// Initial returns the agreed type a group starts with.
func (f PictureTypeFilter) Initial() frame.PictureType {
	if f.Mode == FilterFixed {
		return f.Type
	}
	return frame.PictureNone
}

// String returns the filter as accepted by ParsePictureTypeFilter.
func (f PictureTypeFilter) String() string {
	switch f.Mode {
	case FilterFixed:
		return string(f.Type)
	case "":
		return string(FilterAny)
	}
	return string(f.Mode)
}

// ParsePictureTypeFilter parses "any", "off", or one of "I", "P", "B" (case-insensitive).
func ParsePictureTypeFilter(s string) (PictureTypeFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "none":
		return PictureTypeFilter{Mode: FilterAny}, nil
	case "off", "false", "disabled":
		return PictureTypeFilter{Mode: FilterOff}, nil
	case "i", "p", "b":
		return PictureTypeFilter{Mode: FilterFixed, Type: frame.ParsePictureType(s)}, nil
	default:
		return PictureTypeFilter{}, fmt.Errorf("%w: '%s', valid options: any, off, I, P, B", ErrInvalidPictureType, s)
	}
}

// UnmarshalYAML accepts a string, null (any) or false (off).
func (f *PictureTypeFilter) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var b bool
	if err := unmarshal(&b); err == nil {
		if b {
			return fmt.Errorf("%w: true is not a filter", ErrInvalidPictureType)
		}
		*f = PictureTypeFilter{Mode: FilterOff}
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPictureType, err)
	}
	parsed, err := ParsePictureTypeFilter(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Provider is an upload target.
type Provider string

const (
	ProviderSlowpics Provider = "slowpics"
	ProviderCatbox   Provider = "catbox"
	ProviderImgur    Provider = "imgur"
)

// ParseProvider parses a provider string (case-insensitive).
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "slowpics", "slow.pics":
		return ProviderSlowpics, nil
	case "catbox":
		return ProviderCatbox, nil
	case "imgur":
		return ProviderImgur, nil
	default:
		return "", fmt.Errorf("%w: '%s', valid options: slowpics, catbox, imgur", ErrInvalidProvider, s)
	}
}
