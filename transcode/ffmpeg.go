package transcode

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner drives the external media-encoding tool. The engine only ever
// talks to this interface, so tests can substitute a fake encoder.
type Runner interface {
	// EncodeVariant produces one segmented rendition plus its sub-manifest
	// (index.m3u8) inside variantDir.
	EncodeVariant(ctx context.Context, inputPath, variantDir string, preset QualityPreset) error
	// ExtractThumbnail grabs a single 1280x720 frame at the given offset.
	ExtractThumbnail(ctx context.Context, inputPath, outPath string, atSeconds float64) error
	// BuildSprite samples one frame every 10 seconds into a 10x10 tile grid.
	BuildSprite(ctx context.Context, inputPath, outPath string) error
	// ProbeDuration returns the media duration in seconds.
	ProbeDuration(ctx context.Context, inputPath string) (float64, error)
}

// FFmpegRunner shells out to ffmpeg/ffprobe.
type FFmpegRunner struct{}

func (FFmpegRunner) EncodeVariant(ctx context.Context, inputPath, variantDir string, preset QualityPreset) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vf", fmt.Sprintf("scale=%d:%d", preset.Width, preset.Height),
		"-c:v", "libx264",
		"-b:v", preset.VideoBitrate,
		"-c:a", "aac",
		"-b:a", preset.AudioBitrate,
		"-profile:v", "baseline",
		"-level", "3.0",
		"-start_number", "0",
		"-hls_time", "10",
		"-hls_list_size", "0",
		"-f", "hls",
		filepath.Join(variantDir, "index.m3u8"),
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg %s encode failed: %w: %s", preset.Name, err, output)
	}
	return nil
}

func (FFmpegRunner) ExtractThumbnail(ctx context.Context, inputPath, outPath string, atSeconds float64) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.3f", atSeconds),
		"-i", inputPath,
		"-vframes", "1",
		"-an",
		"-s", "1280x720",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg thumbnail failed: %w: %s", err, output)
	}
	return nil
}

func (FFmpegRunner) BuildSprite(ctx context.Context, inputPath, outPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inputPath,
		"-vf", "fps=1/10,scale=160:90,tile=10x10",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg sprite failed: %w: %s", err, output)
	}
	return nil
}

func (FFmpegRunner) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe error: %w: %s", err, output)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}
