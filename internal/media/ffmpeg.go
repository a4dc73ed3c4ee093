package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg implements Transcoder by shelling out to ffprobe and ffmpeg.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpeg creates a transcoder using the ffmpeg/ffprobe binaries on
// PATH.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

type ffprobeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe reads duration, dimensions and size via ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration,size",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return Info{}, fmt.Errorf("ffprobe output for %s: %w", path, err)
	}
	if len(probed.Streams) == 0 {
		return Info{}, fmt.Errorf("ffprobe %s: no video stream", path)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(probed.Format.Duration), 64)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe duration for %s: %w", path, err)
	}
	size, err := strconv.ParseInt(strings.TrimSpace(probed.Format.Size), 10, 64)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe size for %s: %w", path, err)
	}

	return Info{
		Duration: duration,
		Width:    probed.Streams[0].Width,
		Height:   probed.Streams[0].Height,
		Size:     size,
	}, nil
}

// SquareVideoNote caps duration at MaxVideoNoteSeconds and center-crops
// to a square of side min(width, height) in a single ffmpeg pass, then
// re-checks the size limit.
func (f *FFmpeg) SquareVideoNote(ctx context.Context, path string) (string, error) {
	info, err := f.Probe(ctx, path)
	if err != nil {
		return "", err
	}

	needsCap := info.Duration > MaxVideoNoteSeconds || info.Size > MaxVideoNoteBytes
	needsCrop := abs(info.Width-info.Height) > aspectTolerancePx
	if !needsCap && !needsCrop {
		return path, nil
	}

	out, err := os.CreateTemp("", "videonote-*.mp4")
	if err != nil {
		return "", fmt.Errorf("create temp output: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()

	side := min(info.Width, info.Height)
	args := []string{"-y", "-i", path}
	if needsCap {
		args = append(args, "-t", strconv.Itoa(int(MaxVideoNoteSeconds)))
	}
	if needsCrop {
		args = append(args, "-vf", fmt.Sprintf("crop=%d:%d", side, side))
	}
	args = append(args, "-c:v", "libx264", "-c:a", "aac", "-r", "24", outPath)

	cmd := exec.CommandContext(ctx, f.FFmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg transcode %s: %w: %s", path, err, string(output))
	}

	stat, err := os.Stat(outPath)
	if err != nil {
		return "", fmt.Errorf("stat transcoded %s: %w", outPath, err)
	}
	if stat.Size() > MaxVideoNoteBytes {
		log.Printf("[Transcoder] %s still %d bytes after transcode, rejecting", outPath, stat.Size())
		_ = os.Remove(outPath)
		return "", ErrMediaConstraint
	}
	return outPath, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
