package media

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"clipnote/internal/fileutil"
)

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})\.(\d{2})`)

// ProbeDuration reads the media duration in seconds by parsing ffmpeg's
// banner output. ffmpeg exits nonzero without an output file, so only the
// parse result decides success.
func ProbeDuration(ctx context.Context, ffmpegBinary, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, ffmpegBinary, "-hide_banner", "-i", path)
	out, _ := cmd.CombinedOutput()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dur, ok := ParseDuration(string(out))
	if !ok {
		return 0, fmt.Errorf("no duration in ffmpeg output for %s", path)
	}
	return dur, nil
}

// ParseDuration extracts a duration in seconds from ffmpeg banner text.
func ParseDuration(output string) (float64, bool) {
	m := durationRe.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	cs, _ := strconv.Atoi(m[4])
	return float64(h)*3600 + float64(min)*60 + float64(sec) + float64(cs)/100, true
}

// ExtractFrame writes a single frame at the given timestamp to dest; the
// file extension selects the image format.
func ExtractFrame(ctx context.Context, ffmpegBinary, videoPath string, atSeconds float64, dest string) error {
	cmd := exec.CommandContext(ctx, ffmpegBinary,
		"-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(atSeconds),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", dest,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("extract frame at %.2fs: %w: %s", atSeconds, err, strings.TrimSpace(string(out)))
	}
	if !fileutil.NonEmptyFile(dest) {
		return fmt.Errorf("extract frame at %.2fs: ffmpeg produced no output", atSeconds)
	}
	return nil
}

func formatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	return strconv.FormatFloat(s, 'f', 3, 64)
}
