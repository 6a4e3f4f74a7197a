// Package frame defines per-frame metadata and the brightness classifier.
package frame

import (
	"fmt"
	"strings"
)

// Luma thresholds used by Classify. Bounds are inclusive.
const (
	DarkMin  = 0.062746
	DarkMax  = 0.380000
	LightMin = 0.450000
	LightMax = 0.800000
)

// Class is the brightness classification of a frame.
type Class string

const (
	ClassDark   Class = "dark"
	ClassLight  Class = "light"
	ClassRandom Class = "random"
)

// Classes lists the standard classes in selection order.
var Classes = []Class{ClassDark, ClassLight, ClassRandom}

// String returns the string representation of the class.
func (c Class) String() string {
	return string(c)
}

// Classify maps an average luma value in [0,1] to a class.
func Classify(averageLuma float64) Class {
	switch {
	case averageLuma >= DarkMin && averageLuma <= DarkMax:
		return ClassDark
	case averageLuma >= LightMin && averageLuma <= LightMax:
		return ClassLight
	default:
		return ClassRandom
	}
}

// PictureType is the codec-level picture type of a frame.
// The zero value means the type is unknown.
type PictureType string

const (
	PictureNone PictureType = ""
	PictureI    PictureType = "I"
	PictureP    PictureType = "P"
	PictureB    PictureType = "B"
)

// ParsePictureType converts ffprobe's pict_type value into a PictureType.
// Anything other than I, P or B (ffprobe reports "?" when unknown) maps to PictureNone.
func ParsePictureType(s string) PictureType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "I":
		return PictureI
	case "P":
		return PictureP
	case "B":
		return PictureB
	default:
		return PictureNone
	}
}

// String returns the picture type, or "?" when unknown.
func (p PictureType) String() string {
	if p == PictureNone {
		return "?"
	}
	return string(p)
}

// Info is a snapshot of one frame of one source.
type Info struct {
	Index       int
	AverageLuma float64
	PictureType PictureType
	Class       Class
	Width       int
	Height      int
	ColorMatrix string
	ColorRange  string
	SceneChange bool

	// Extra holds provider tags that are not promoted to a field.
	Extra map[string]string
}

// New builds an Info and derives its class from the luma value.
func New(index int, averageLuma float64, pictureType PictureType) Info {
	return Info{
		Index:       index,
		AverageLuma: averageLuma,
		PictureType: pictureType,
		Class:       Classify(averageLuma),
	}
}

// Resolution returns the frame size formatted as WxH.
func (i Info) Resolution() string {
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}
