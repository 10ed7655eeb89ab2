// Package retime is the conductor: it wires the silence detector,
// duration transform, timeline planner, video frame selector, audio
// splicer, drift accountant, and (optionally) the time-code rewriter
// into a single streaming pass over one input video, producing a
// retimed video and audio track plus an optional rewritten description.
package retime

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/retime/retime/internal/config"
	"github.com/retime/retime/internal/pcm"
	"github.com/retime/retime/internal/resample"
	"github.com/retime/retime/internal/silence"
	"github.com/retime/retime/internal/timecode"
	"github.com/retime/retime/internal/timeline"
	"github.com/retime/retime/internal/transform"
	"github.com/retime/retime/internal/videoframe"
)

// ErrDecoderFailed and ErrEncoderFailed are spec §7's DecoderFailed/EncoderFailed kinds.
var (
	ErrDecoderFailed = errors.New("decoder process failed")
	ErrEncoderFailed = errors.New("encoder process failed")
)

// VideoInfo describes the decoded video track's shape, which in a real
// deployment comes from probing the container (out of scope here per
// spec §1 — the caller supplies it).
type VideoInfo struct {
	Width, Height int
	FrameRate     float64
	NumFrames     int
}

// Report summarizes a completed run, for CLI progress output.
type Report struct {
	SilenceRegions   []silence.Region
	IncludingEnd     bool
	Segments         []timeline.Segment
	TotalDuration    float64
	TotalNewDuration float64
	EmittedAudio     int
	EmittedVideo     int
}

// Run executes the full pipeline: detect silences in audio, plan the
// new timeline, then stream videoIn onto videoOut through an external
// decoder/encoder pair while building the retimed audio track in
// memory, per spec §2's data flow. Each segment's video forwarding and
// audio splice run concurrently via RunParallel, per spec §5b.
//
// videoIn/videoOut are the already-started subprocess pipes for the raw
// RGB24 stream (spec §6); the audio track is random-access in memory
// (spec §3). The retimed audio samples are returned alongside the Report,
// as the second return value, for the caller to hand to pcm.Save or an
// audio encoder.
func Run(ctx context.Context, cfg *config.Config, audio *pcm.Source, video VideoInfo, videoIn io.Reader, videoOut io.Writer) (*Report, []int32, error) {
	detectCfg := silence.Config{
		ThresholdLevelDB:   cfg.ThresholdLevel,
		ThresholdDurationS: cfg.ThresholdDuration,
		BlendDurationS:     cfg.BlendDuration,
	}

	var detectResult silence.Result
	var err error
	if cfg.DetectorWorkers > 1 {
		detectResult, err = silence.DetectParallel(audio, detectCfg, cfg.DetectorWorkers)
	} else {
		detectResult, err = silence.Detect(audio, detectCfg)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.SaveSilence != "" && len(detectResult.Regions) > 0 {
		samples := silence.CollectSilentSamples(audio, detectResult.Regions)
		if err := audio.Save(cfg.SaveSilence, samples); err != nil {
			return nil, nil, errors.Wrap(err, "save_silence")
		}
	}

	if len(detectResult.Regions) == 0 {
		// Nothing to do: spec §6, exit 0, no output written.
		return &Report{IncludingEnd: detectResult.IncludingEnd}, nil, nil
	}

	transformCfg := transform.Config{Constant: cfg.Constant, Sublinear: cfg.Sublinear, Linear: cfg.Linear}
	for _, r := range detectResult.Regions {
		if transformCfg.Raw(r.Duration()) > r.Duration() {
			return nil, nil, errors.Wrapf(config.ErrConfigInvalid,
				"transform yields new_dur > dur on silence [%.3f, %.3f)", r.StartS, r.EndS)
		}
	}

	duration := float64(audio.NumFrames()) / float64(audio.SampleRate)
	segments := timeline.Plan(detectResult.Regions, duration, detectResult.IncludingEnd, transformCfg)

	if cfg.RecalculateTimeInDescription != "" {
		if err := rewriteDescription(cfg.RecalculateTimeInDescription, segments); err != nil {
			return nil, nil, err
		}
	}

	selector := videoframe.NewSelector(videoIn, videoOut, video.Width, video.Height)
	var drift resample.DriftAccountant
	var totalNewDur float64
	emittedAudio, emittedVideo := 0, 0
	var outSamples []int32

	for _, seg := range segments {
		startFrame := int(seg.T0 * video.FrameRate)
		endFrame := video.NumFrames
		if seg.T1 < duration {
			endFrame = int(seg.T1 * video.FrameRate)
		}

		audioStart := min(int(seg.T0*float64(audio.SampleRate)), audio.NumFrames())
		audioEnd := audio.NumFrames()
		if seg.T1 < duration {
			audioEnd = min(int(seg.T1*float64(audio.SampleRate)), audio.NumFrames())
		}

		var keepIndices []int
		var kv int
		if seg.IsSilence {
			kv = videoframe.KeptFrameCount(true, startFrame, endFrame, seg.NewDur, video.FrameRate)
			keepIndices = videoframe.SelectedIndices(startFrame, endFrame, kv)
		} else {
			kv = endFrame - startFrame
			keepIndices = rangeIndices(startFrame, endFrame)
		}

		var ka int
		if seg.IsSilence {
			ka = drift.SilentFrameCount(seg.Dur(), kv, video.FrameRate, float64(audio.SampleRate), audioStart, audioEnd)
		} else {
			ka = drift.NonSilentFrameCount(audioStart, audioEnd)
		}

		samples, err := RunParallel(ctx, seg, selector, startFrame, endFrame, keepIndices, audio, audioStart, audioEnd, ka)
		if err != nil {
			return nil, nil, err
		}
		emittedVideo += kv
		outSamples = append(outSamples, samples...)
		emittedAudio += ka
		totalNewDur += seg.NewDur
	}

	return &Report{
		SilenceRegions:   detectResult.Regions,
		IncludingEnd:     detectResult.IncludingEnd,
		Segments:         segments,
		TotalDuration:    duration,
		TotalNewDuration: totalNewDur,
		EmittedAudio:     emittedAudio,
		EmittedVideo:     emittedVideo,
	}, outSamples, nil
}

func rangeIndices(start, end int) []int {
	idx := make([]int, end-start)
	for i := range idx {
		idx[i] = start + i
	}
	return idx
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func rewriteDescription(path string, segments []timeline.Segment) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read description %s", path)
	}
	rewritten := timecode.Rewrite(string(data), segments)
	out := timecode.ResultPath(path)
	if err := os.WriteFile(out, []byte(rewritten), 0o644); err != nil {
		return errors.Wrapf(err, "write rewritten description %s", out)
	}
	return nil
}

// StartDecoder and StartEncoder spawn the external raw-video
// decoder/encoder subprocesses named by cfg (spec §6: container muxing
// is out of scope for the core, but a runnable pipeline needs to invoke
// them the way the original's remove_silences does).
func StartDecoder(ctx context.Context, cfg *config.Config, inputPath string, width, height int, frameRate float64) (*exec.Cmd, io.ReadCloser, error) {
	args := []string{"-i", inputPath, "-f", "image2pipe", "-pix_fmt", "rgb24", "-vcodec", "rawvideo", "-"}
	cmd := exec.CommandContext(ctx, cfg.DecoderPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(ErrDecoderFailed, err.Error())
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, errors.Wrap(ErrDecoderFailed, err.Error())
	}
	return cmd, stdout, nil
}

func StartEncoder(ctx context.Context, cfg *config.Config, outputPath string, width, height int, frameRate float64) (*exec.Cmd, io.WriteCloser, error) {
	args := []string{
		"-framerate", ftoa(frameRate), "-s", itoa(width) + "x" + itoa(height),
		"-f", "rawvideo", "-pix_fmt", "rgb24", "-i", "-",
		"-f", "mp4", "-pix_fmt", "yuv420p", "-y", outputPath,
	}
	cmd := exec.CommandContext(ctx, cfg.EncoderPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, errors.Wrap(ErrEncoderFailed, err.Error())
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, errors.Wrap(ErrEncoderFailed, err.Error())
	}
	return cmd, stdin, nil
}

// WaitEncoder closes the encoder's stdin and waits for it to exit,
// surfacing a non-zero exit status as EncoderFailed (spec §7).
func WaitEncoder(cmd *exec.Cmd, stdin io.WriteCloser) error {
	if err := stdin.Close(); err != nil {
		return errors.Wrap(ErrEncoderFailed, err.Error())
	}
	if err := cmd.Wait(); err != nil {
		return errors.Wrap(ErrEncoderFailed, err.Error())
	}
	return nil
}

// RunParallel mirrors Run's video selection and audio splicing but
// overlaps the two per spec §5b: while the selector streams frames to
// the encoder, the audio splice for the same segment can run
// concurrently (each operates on disjoint resources — the video pipe
// and the random-access PCM buffer).
func RunParallel(ctx context.Context, seg timeline.Segment, selector *videoframe.Selector, startFrame, endFrame int, keep []int, audio *pcm.Source, audioStart, audioEnd, ka int) ([]int32, error) {
	var samples []int32
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return selector.ForwardSegment(startFrame, endFrame, keep)
	})
	g.Go(func() error {
		var err error
		samples, err = resample.Splice(audio, audioStart, audioEnd, ka)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
