package ffprobe

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/five82/framecomp/internal/frame"
)

// IndexExt is appended to a source path to name its sidecar index.
const IndexExt = ".fcidx"

const indexVersion = 1

// indexFile is the on-disk form of a scanned source.
type indexFile struct {
	Version   int          `json:"version"`
	Size      int64        `json:"size"`
	ModTime   int64        `json:"mod_time"`
	Requested string       `json:"requested_rate"`
	FrameRate string       `json:"frame_rate"`
	Stream    StreamInfo   `json:"stream"`
	Frames    []indexFrame `json:"frames"`
}

type indexFrame struct {
	Luma   float64           `json:"l"`
	Type   string            `json:"t,omitempty"`
	Width  int               `json:"w"`
	Height int               `json:"h"`
	Matrix string            `json:"m,omitempty"`
	Range  string            `json:"r,omitempty"`
	Scene  bool              `json:"s,omitempty"`
	Extra  map[string]string `json:"x,omitempty"`
}

// IndexPath returns the sidecar index path of source.
func IndexPath(source string) string {
	return source + IndexExt
}

// cachedScan is a scan restored from a sidecar index.
type cachedScan struct {
	stream    *StreamInfo
	frameRate string
	frames    []frame.Info
}

// loadIndex reads the sidecar of source. It reports false when the sidecar is
// missing, unreadable, or was written for another file state or requested rate.
func loadIndex(source, requested string) (*cachedScan, bool) {
	st, err := os.Stat(source)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(IndexPath(source))
	if err != nil {
		return nil, false
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, false
	}
	if idx.Version != indexVersion || idx.Size != st.Size() || idx.ModTime != st.ModTime().UnixNano() ||
		idx.Requested != requested || len(idx.Frames) == 0 {
		return nil, false
	}

	frames := make([]frame.Info, len(idx.Frames))
	for i, f := range idx.Frames {
		info := frame.New(i, f.Luma, frame.PictureType(f.Type))
		info.Width = f.Width
		info.Height = f.Height
		info.ColorMatrix = f.Matrix
		info.ColorRange = f.Range
		info.SceneChange = f.Scene
		info.Extra = f.Extra
		frames[i] = info
	}
	stream := idx.Stream
	return &cachedScan{stream: &stream, frameRate: idx.FrameRate, frames: frames}, true
}

// writeIndex stores the scan of source next to it and returns the sidecar path.
func writeIndex(source, requested string, scan *cachedScan) (string, error) {
	st, err := os.Stat(source)
	if err != nil {
		return "", err
	}

	idx := indexFile{
		Version:   indexVersion,
		Size:      st.Size(),
		ModTime:   st.ModTime().UnixNano(),
		Requested: requested,
		FrameRate: scan.frameRate,
		Stream:    *scan.stream,
		Frames:    make([]indexFrame, len(scan.frames)),
	}
	for i, f := range scan.frames {
		idx.Frames[i] = indexFrame{
			Luma:   f.AverageLuma,
			Type:   string(f.PictureType),
			Width:  f.Width,
			Height: f.Height,
			Matrix: f.ColorMatrix,
			Range:  f.ColorRange,
			Scene:  f.SceneChange,
			Extra:  f.Extra,
		}
	}

	data, err := json.Marshal(&idx)
	if err != nil {
		return "", fmt.Errorf("failed to encode index: %w", err)
	}
	path := IndexPath(source)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write index %s: %w", path, err)
	}
	return path, nil
}
