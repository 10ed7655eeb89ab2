package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/retime/retime/internal/config"
)

// videoProbe is the subset of a container's properties the engine needs
// to drive frame selection: resolution, frame rate, and frame count.
type videoProbe struct {
	Width, Height int
	FrameRate     float64
	NumFrames     int
}

// extractAudio demuxes the input's audio track to a temporary 16-bit
// PCM WAV file, the way batch_silence_remover.py shells out to ffmpeg
// before analysis.
func extractAudio(ctx context.Context, cfg *config.Config) (string, error) {
	out, err := os.CreateTemp("", "retime-audio-in-*.wav")
	if err != nil {
		return "", err
	}
	out.Close()

	cmd := exec.CommandContext(ctx, cfg.DecoderPath, "-i", cfg.InputFile, "-acodec", "pcm_s16le", "-f", "wav", "-y", out.Name())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out.Name())
		return "", fmt.Errorf("%s: %s", err, stderr.String())
	}
	return out.Name(), nil
}

// probeVideo reads resolution, duration and frame count/rate via
// ffprobe's JSON output.
func probeVideo(ctx context.Context, path string) (videoProbe, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames,duration",
		"-of", "json", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return videoProbe{}, fmt.Errorf("%s: %s", err, stderr.String())
	}

	var parsed struct {
		Streams []struct {
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
			NbFrames   string `json:"nb_frames"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return videoProbe{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return videoProbe{}, fmt.Errorf("no video stream found in %s", path)
	}
	s := parsed.Streams[0]

	frameRate, err := parseFraction(s.RFrameRate)
	if err != nil {
		return videoProbe{}, fmt.Errorf("parse frame rate: %w", err)
	}
	duration, _ := strconv.ParseFloat(s.Duration, 64)

	numFrames, err := strconv.Atoi(s.NbFrames)
	if err != nil || numFrames == 0 {
		// nb_frames is frequently absent for streamed containers;
		// fall back to frame_rate * duration like the original does.
		numFrames = int(frameRate * duration)
	} else {
		frameRate = float64(numFrames) / duration
	}

	return videoProbe{Width: s.Width, Height: s.Height, FrameRate: frameRate, NumFrames: numFrames}, nil
}

func parseFraction(s string) (float64, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return strconv.ParseFloat(s, 64)
	}
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0, fmt.Errorf("invalid denominator in %q", s)
	}
	return num / den, nil
}

// muxAudio combines the re-encoded video track with the retimed audio
// track into the final output container, copying the video codec
// verbatim and mapping each track from its own input.
func muxAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "mp4", "-i", videoPath,
		"-f", "wav", "-i", audioPath,
		"-c:v", "copy", "-map", "0:v:0", "-map", "1:a:0", "-y", outputPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %s", err, stderr.String())
	}
	return nil
}
