package ffmpeg

import (
	"fmt"
	"strings"
)

// VideoFilterChain builds video filter chains.
type VideoFilterChain struct {
	filters []string
}

// NewVideoFilterChain creates a new empty filter chain.
func NewVideoFilterChain() *VideoFilterChain {
	return &VideoFilterChain{}
}

// AddFilter adds a custom filter to the chain.
func (c *VideoFilterChain) AddFilter(filter string) *VideoFilterChain {
	if filter != "" {
		c.filters = append(c.filters, filter)
	}
	return c
}

// AddFPS adds a frame rate conversion. An empty rate is ignored.
func (c *VideoFilterChain) AddFPS(rate string) *VideoFilterChain {
	if rate != "" {
		c.filters = append(c.filters, "fps="+rate)
	}
	return c
}

// AddSelectFrame keeps only the frame with the given decode index.
func (c *VideoFilterChain) AddSelectFrame(index int) *VideoFilterChain {
	c.filters = append(c.filters, fmt.Sprintf(`select=eq(n\,%d)`, index))
	return c
}

// AddScale adds a spline resize with error diffusion dithering.
// inMatrix and inRange describe the source; empty values are omitted.
func (c *VideoFilterChain) AddScale(width, height int, inMatrix, inRange string) *VideoFilterChain {
	opts := []string{
		fmt.Sprintf("w=%d", width),
		fmt.Sprintf("h=%d", height),
		"flags=spline+accurate_rnd+full_chroma_int",
		"sws_dither=ed",
	}
	if inMatrix != "" {
		opts = append(opts, "in_color_matrix="+inMatrix)
	}
	if inRange != "" {
		opts = append(opts, "in_range="+inRange)
	}
	c.filters = append(c.filters, "scale="+strings.Join(opts, ":"))
	return c
}

// AddFormat converts to the given pixel format.
func (c *VideoFilterChain) AddFormat(pixFmt string) *VideoFilterChain {
	return c.AddFilter("format=" + pixFmt)
}

// Build builds the filter chain into a single filter string.
// Returns empty string if no filters are present.
func (c *VideoFilterChain) Build() string {
	if len(c.filters) == 0 {
		return ""
	}
	return strings.Join(c.filters, ",")
}

// MovieSource returns a lavfi movie source for path, escaped for use inside
// a filtergraph description.
func MovieSource(path string) string {
	return "movie=" + EscapeFilterPath(path)
}

// EscapeFilterPath quotes a path as a filter option value.
// The value is escaped once for the option parser and once for the graph parser.
func EscapeFilterPath(path string) string {
	// Option level: quoted text is literal, so only quotes need care.
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range path {
		if r == '\'' {
			b.WriteString(`'\''`)
			continue
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	opt := b.String()

	// Graph level: escape the characters the graph parser reacts to.
	var g strings.Builder
	for _, r := range opt {
		switch r {
		case '\\', '\'', '[', ']', ',', ';', ':', '=':
			g.WriteByte('\\')
		}
		g.WriteRune(r)
	}
	return g.String()
}

// ColorMatrixOption maps an ffprobe color_space to a swscale in_color_matrix value.
// Unknown or unspecified matrices are treated as BT.709.
func ColorMatrixOption(colorSpace string) string {
	switch strings.ToLower(colorSpace) {
	case "bt2020nc", "bt2020c", "bt2020":
		return "bt2020"
	case "smpte170m", "bt470bg", "bt601":
		return "bt601"
	case "smpte240m":
		return "smpte240m"
	case "fcc":
		return "fcc"
	default:
		return "bt709"
	}
}

// ColorRangeOption maps an ffprobe color_range to a swscale in_range value.
// Unspecified ranges are treated as limited.
func ColorRangeOption(colorRange string) string {
	switch strings.ToLower(colorRange) {
	case "pc", "jpeg", "full":
		return "full"
	default:
		return "limited"
	}
}
