package ffmpeg

import "strconv"

// BuildExtractArgs builds the ffmpeg arguments that render a single frame
// as an RGB24 PNG.
func BuildExtractArgs(p *ExtractParams) []string {
	chain := NewVideoFilterChain().
		AddFPS(p.FrameRate).
		AddSelectFrame(p.Index)

	if p.Height > 0 && p.Width > 0 {
		chain.AddScale(p.Width, p.Height, ColorMatrixOption(p.ColorSpace), ColorRangeOption(p.ColorRange))
	}
	chain.AddFormat("rgb24")

	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", p.Input,
		"-map", "0:v:0",
		"-vf", chain.Build(),
		"-fps_mode", "passthrough",
		"-frames:v", strconv.Itoa(1),
		"-update", "1",
		"-c:v", "png",
		p.Output,
	}
}
