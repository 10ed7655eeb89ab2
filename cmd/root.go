package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/retime/retime/internal/config"
	"github.com/retime/retime/internal/pcm"
	"github.com/retime/retime/internal/retime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var cfg *config.Config
var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "retime [OPTIONS] <input.mp4>",
	Short: "Silence-aware audio/video retiming engine",
	Long: `retime compresses silent stretches of a recording while keeping audio and
video in sync: silences are shortened by a configurable duration transform
instead of being cut outright, and a sparse, evenly-spaced selection of
video frames stands in for the shortened span.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetime,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. ctx is canceled by the caller on SIGINT/SIGTERM; every
// subprocess and blocking call in runRetime hangs off cmd.Context(), so
// cancellation here propagates into retime.Run and the decoder/encoder
// exec.Cmds, letting their deferred cleanup (temp file removal, subprocess
// Wait) run instead of the process being killed outright.
func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg = config.DefaultConfig()

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a YAML configuration file")
	rootCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", "", "output file (default: input with _result suffix)")
	rootCmd.Flags().StringVar(&cfg.DecoderPath, "decoder", cfg.DecoderPath, "external video decoder binary")
	rootCmd.Flags().StringVar(&cfg.EncoderPath, "encoder", cfg.EncoderPath, "external video encoder binary")
	rootCmd.Flags().Float64VarP(&cfg.ThresholdLevel, "threshold-level", "t", cfg.ThresholdLevel,
		"silence threshold in dBFS (-120 to 0)")
	rootCmd.Flags().Float64VarP(&cfg.ThresholdDuration, "threshold-duration", "d", cfg.ThresholdDuration,
		"minimum silence duration in seconds")
	rootCmd.Flags().Float64VarP(&cfg.BlendDuration, "blend-duration", "b", cfg.BlendDuration,
		"width of the centered energy window, in seconds; detected silences are inset by half of it")
	rootCmd.Flags().Float64Var(&cfg.Constant, "constant", cfg.Constant, "duration transform constant term")
	rootCmd.Flags().Float64Var(&cfg.Sublinear, "sublinear", cfg.Sublinear, "duration transform sublinear (log) coefficient")
	rootCmd.Flags().Float64Var(&cfg.Linear, "linear", cfg.Linear, "duration transform linear coefficient")
	rootCmd.Flags().StringVar(&cfg.SaveSilence, "save-silence", "", "path to save the concatenated detected silences to, for tuning")
	rootCmd.Flags().StringVar(&cfg.RecalculateTimeInDescription, "recalculate-time-in-description", "",
		"path to a text file whose H:MM:SS time codes should be rewritten onto the new timeline")
	rootCmd.Flags().IntVar(&cfg.DetectorWorkers, "detector-workers", cfg.DetectorWorkers,
		"number of goroutines used for silence detection")

	rootCmd.Flags().Bool("debug-info", false, "also print audio level statistics and the planned timeline")
}

// mergeConfigFile loads configFile on top of cfg, then re-applies every
// flag the user explicitly set on the command line, so that flags win
// over the file per SPEC_FULL.md's ambient-stack config rule.
func mergeConfigFile(flags *pflag.FlagSet) error {
	if configFile == "" {
		return nil
	}
	explicit := map[string]string{}
	flags.Visit(func(f *pflag.Flag) { explicit[f.Name] = f.Value.String() })

	if err := cfg.LoadFile(configFile); err != nil {
		return err
	}
	for name, value := range explicit {
		if name == "config" {
			continue
		}
		if f := flags.Lookup(name); f != nil {
			_ = f.Value.Set(value)
		}
	}
	return nil
}

func runRetime(cmd *cobra.Command, args []string) error {
	if err := mergeConfigFile(cmd.Flags()); err != nil {
		return err
	}

	cfg.InputFile = args[0]
	if cfg.OutputFile == "" {
		cfg.OutputFile = defaultOutputFile(cfg.InputFile)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(cfg.InputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", cfg.InputFile)
	}

	fmt.Printf("retime: %s -> %s\n", cfg.InputFile, cfg.OutputFile)
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Threshold Level: %.1f dBFS\n", cfg.ThresholdLevel)
	fmt.Printf("  Threshold Duration: %.3fs\n", cfg.ThresholdDuration)
	fmt.Printf("  Blend Duration: %.3fs\n", cfg.BlendDuration)
	fmt.Printf("  Transform: constant=%.3f sublinear=%.3f linear=%.3f\n", cfg.Constant, cfg.Sublinear, cfg.Linear)
	fmt.Println()

	fmt.Println("Extracting audio...")
	audioPath, err := extractAudio(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to extract audio: %w", err)
	}
	defer os.Remove(audioPath)

	source, err := pcm.Load(audioPath)
	if err != nil {
		return fmt.Errorf("failed to load extracted audio: %w", err)
	}
	fmt.Printf("✓ (%.2fs, %dHz, %dch)\n", source.Duration(), source.SampleRate, source.Channels)

	debugInfo, _ := cmd.Flags().GetBool("debug-info")
	if debugInfo {
		fmt.Println(source.DebugSummary())
	}

	probe, err := probeVideo(cmd.Context(), cfg.InputFile)
	if err != nil {
		return fmt.Errorf("failed to probe video: %w", err)
	}

	fmt.Println("\nProcessing frames...")
	decoderCmd, videoIn, err := retime.StartDecoder(cmd.Context(), cfg, cfg.InputFile, probe.Width, probe.Height, probe.FrameRate)
	if err != nil {
		return err
	}
	videoTrack, err := os.CreateTemp("", "retime-video-*.mp4")
	if err != nil {
		return fmt.Errorf("failed to create temp video file: %w", err)
	}
	videoTrack.Close()
	defer os.Remove(videoTrack.Name())

	encoderCmd, videoOut, err := retime.StartEncoder(cmd.Context(), cfg, videoTrack.Name(), probe.Width, probe.Height, probe.FrameRate)
	if err != nil {
		return err
	}

	report, samples, err := retime.Run(cmd.Context(), cfg, source, retime.VideoInfo{
		Width: probe.Width, Height: probe.Height, FrameRate: probe.FrameRate, NumFrames: probe.NumFrames,
	}, videoIn, videoOut)
	if err != nil {
		return err
	}

	if err := retime.WaitEncoder(encoderCmd, videoOut); err != nil {
		return err
	}
	_ = decoderCmd.Wait()

	if debugInfo {
		fmt.Printf("\n=== PLANNED TIMELINE ===\n")
		for _, seg := range report.Segments {
			fmt.Printf("  [%.3f, %.3f) silence=%v new_dur=%.3f\n", seg.T0, seg.T1, seg.IsSilence, seg.NewDur)
		}
	}

	fmt.Printf("\nFound %d silence region(s)\n", len(report.SilenceRegions))
	if len(report.SilenceRegions) == 0 {
		fmt.Println("Nothing to do.")
		return nil
	}

	audioTrack, err := os.CreateTemp("", "retime-audio-*.wav")
	if err != nil {
		return fmt.Errorf("failed to create temp audio file: %w", err)
	}
	audioTrack.Close()
	defer os.Remove(audioTrack.Name())

	if err := source.Save(audioTrack.Name(), samples); err != nil {
		return fmt.Errorf("failed to save retimed audio: %w", err)
	}

	if err := muxAudio(cmd.Context(), videoTrack.Name(), audioTrack.Name(), cfg.OutputFile); err != nil {
		return fmt.Errorf("failed to mux retimed audio: %w", err)
	}

	fmt.Printf("✅ Processing completed: %.2fs -> %.2fs\n", report.TotalDuration, report.TotalNewDuration)
	return nil
}

func defaultOutputFile(inputFile string) string {
	ext := filepath.Ext(inputFile)
	base := strings.TrimSuffix(inputFile, ext)
	return base + "_result" + ext
}
