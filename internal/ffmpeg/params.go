package ffmpeg

import "math"

// ExtractParams describes one frame to render to a PNG.
type ExtractParams struct {
	Input  string
	Output string
	Index  int

	// FrameRate is an optional "num/den" rate applied before selecting the frame.
	FrameRate string

	// Target size. A zero Height keeps the source size.
	Width  int
	Height int

	// Source color description as reported by ffprobe.
	ColorSpace string
	ColorRange string
}

// ScaledWidth returns the even width that keeps the aspect ratio of
// srcWidth x srcHeight at the target height.
func ScaledWidth(srcWidth, srcHeight, height int) int {
	if srcHeight <= 0 {
		return srcWidth
	}
	w := float64(height) * float64(srcWidth) / float64(srcHeight)
	return int(math.Round(w/2)) * 2
}
