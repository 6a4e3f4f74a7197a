// Package ffmpeg builds and runs ffmpeg commands that render single frames.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/logging"
)

// Binary is the ffmpeg executable looked up on PATH.
var Binary = "ffmpeg"

// maxStderrLines bounds the stderr excerpt carried in errors.
const maxStderrLines = 5

// ExtractFrame renders the frame described by p to p.Output.
func ExtractFrame(ctx context.Context, p *ExtractParams) error {
	args := BuildExtractArgs(p)
	logging.Debug("running ffmpeg", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ferrors.NewCancelledError()
		}
		return ferrors.WrapExecError(Binary, err, tailLines(stderr.String(), maxStderrLines))
	}

	// A select that matches nothing still exits 0 without writing the file.
	info, err := os.Stat(p.Output)
	if err != nil || info.Size() == 0 {
		return ferrors.NewExportError(fmt.Sprintf("ffmpeg produced no image for frame %d of %s", p.Index, p.Input), err)
	}
	return nil
}

// tailLines returns the last n non-empty lines of s joined with "; ".
func tailLines(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
