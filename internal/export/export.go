// Package export renders selected frames to PNG images.
package export

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/ffmpeg"
	"github.com/five82/framecomp/internal/frame"
	"github.com/five82/framecomp/internal/logging"
	"github.com/five82/framecomp/internal/util"
)

// baseFontSize is the overlay font size at 720p.
const baseFontSize = 25

// RenderFunc renders one frame to a PNG file.
type RenderFunc func(ctx context.Context, p *ffmpeg.ExtractParams) error

// Request describes one frame to export.
type Request struct {
	Path      string
	FrameRate string
	Frame     frame.Info

	// Source stream properties, used when the frame does not carry them.
	SourceWidth  int
	SourceHeight int
	ColorSpace   string
	ColorRange   string

	// Height is the target height; 0 keeps the source height.
	Height int
}

// Image is an exported frame.
type Image struct {
	Path   string
	Source string
	Frame  frame.Info
	Width  int
	Height int
}

// Exporter renders frames into a directory.
type Exporter struct {
	outputDir string
	overlay   bool
	render    RenderFunc
}

// New creates an exporter writing to outputDir, using ffmpeg to render frames.
func New(outputDir string, overlay bool) *Exporter {
	return NewWithRenderer(outputDir, overlay, ffmpeg.ExtractFrame)
}

// NewWithRenderer creates an exporter with a custom renderer.
func NewWithRenderer(outputDir string, overlay bool, render RenderFunc) *Exporter {
	return &Exporter{outputDir: outputDir, overlay: overlay, render: render}
}

// OutputDir returns the directory images are written to.
func (e *Exporter) OutputDir() string {
	return e.outputDir
}

// FileName returns the image name of frame index of source: the md5 of the
// cleaned absolute source path followed by the frame index. Sources sharing
// a file name in different directories get different names.
func FileName(source string, index int) string {
	path, err := filepath.Abs(source)
	if err != nil {
		path = filepath.Clean(source)
	}
	sum := md5.Sum([]byte(path))
	return fmt.Sprintf("%s-%d.png", hex.EncodeToString(sum[:]), index)
}

// FontSize returns the overlay font size for an image height.
func FontSize(height int) int {
	if height == 720 || height <= 0 {
		return baseFontSize
	}
	return int(math.Ceil(baseFontSize * float64(height) / 720))
}

// Export renders req to <outputDir>/<FileName>, replacing any existing file.
func (e *Exporter) Export(ctx context.Context, req Request) (Image, error) {
	if err := ctx.Err(); err != nil {
		return Image{}, ferrors.NewCancelledError()
	}
	if err := util.EnsureDirectory(e.outputDir); err != nil {
		return Image{}, ferrors.NewIOError("cannot create output directory "+e.outputDir, err)
	}

	srcW, srcH := req.sourceSize()
	height := req.Height
	if height <= 0 {
		height = srcH
	}
	width := ffmpeg.ScaledWidth(srcW, srcH, height)

	out := filepath.Join(e.outputDir, FileName(req.Path, req.Frame.Index))
	params := &ffmpeg.ExtractParams{
		Input:      req.Path,
		Output:     out,
		Index:      req.Frame.Index,
		FrameRate:  req.FrameRate,
		Width:      width,
		Height:     height,
		ColorSpace: firstNonEmpty(req.Frame.ColorMatrix, req.ColorSpace),
		ColorRange: firstNonEmpty(req.Frame.ColorRange, req.ColorRange),
	}

	logging.Debug("exporting frame", "source", req.Path, "frame", req.Frame.Index, "height", height)
	if err := e.render(ctx, params); err != nil {
		if ferrors.IsCancelled(err) {
			return Image{}, err
		}
		return Image{}, ferrors.NewExportError(fmt.Sprintf("frame %d of %s", req.Frame.Index, filepath.Base(req.Path)), err)
	}

	if e.overlay {
		if err := e.applyOverlay(out, OverlayLines(req), FontSize(height)); err != nil {
			return Image{}, ferrors.NewExportError(fmt.Sprintf("overlay of frame %d of %s", req.Frame.Index, filepath.Base(req.Path)), err)
		}
	}

	return Image{Path: out, Source: req.Path, Frame: req.Frame, Width: width, Height: height}, nil
}

func (e *Exporter) applyOverlay(path string, lines []string, size int) error {
	img, err := imaging.Open(path)
	if err != nil {
		return err
	}
	dst, err := DrawOverlay(img, lines, size)
	if err != nil {
		return err
	}
	return imaging.Save(dst, path)
}

// OverlayLines returns the text drawn on an exported frame.
func OverlayLines(req Request) []string {
	srcW, srcH := req.sourceSize()
	return []string{
		"Filename: " + filepath.Base(req.Path),
		fmt.Sprintf("Frame: %d", req.Frame.Index),
		"Picture type: " + req.Frame.PictureType.String(),
		fmt.Sprintf("Original resolution: %dx%d", srcW, srcH),
		"Color matrix: " + matrixName(firstNonEmpty(req.Frame.ColorMatrix, req.ColorSpace)),
		"Color range: " + rangeName(firstNonEmpty(req.Frame.ColorRange, req.ColorRange)),
	}
}

func (r Request) sourceSize() (int, int) {
	if r.SourceWidth > 0 && r.SourceHeight > 0 {
		return r.SourceWidth, r.SourceHeight
	}
	return r.Frame.Width, r.Frame.Height
}

func matrixName(colorSpace string) string {
	if colorSpace == "" || colorSpace == "unknown" {
		return "UNSPECIFIED"
	}
	return strings.ToUpper(colorSpace)
}

func rangeName(colorRange string) string {
	switch strings.ToLower(colorRange) {
	case "tv", "mpeg", "limited":
		return "LIMITED"
	case "pc", "jpeg", "full":
		return "FULL"
	default:
		return "UNSPECIFIED"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
