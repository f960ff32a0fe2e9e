package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/avplayer/audiooutput"
	"github.com/xaionaro-go/avplayer/audiooutput/otodevice"
	"github.com/xaionaro-go/avplayer/audiooutput/wavfile"
	avlogger "github.com/xaionaro-go/avplayer/logger"
	"github.com/xaionaro-go/avplayer/player"
	"github.com/xaionaro-go/avplayer/resampler"
	"github.com/xaionaro-go/avplayer/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/secret"
	"gopkg.in/yaml.v3"
)

const authKeyEnvVar = "AVPLAY_AUTH_KEY"

type snapshotter interface {
	SaveSnapshot(ctx context.Context, path string, maxWidth int) error
}

func main() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "syntax: %s [options] <URL>\n", os.Args[0])
		pflag.PrintDefaults()
	}

	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	configPath := pflag.String("config", "", "path to a YAML file with the player config")
	frameCap := pflag.Int("frame-cap", 0, "the amount of video frames decoded ahead")
	frameRate := pflag.String("frame-rate", "", "override the frame rate, e.g.: 30000/1001, 25, ~29.97")
	pixelFormat := pflag.String("pixel-format", "", "the pixel format of the surface: bgr24, rgb24, bgra, rgba, argb, abgr, gray")
	sampleFormat := pflag.String("sample-format", "", "the PCM sample format: s16, s32, flt")
	resolution := pflag.String("resolution", "", "scale the video to this resolution, e.g.: 1280x720")
	audioMode := pflag.String("audio-mode", "", "stream or preload")
	pacingMode := pflag.String("pacing-mode", "", "index or timestamp")
	serializeDecoder := pflag.Bool("serialize-decoder", false, "guard every decoder call with a single lock")
	audioOut := pflag.String("audio", "device", "the audio output: device, wav, discard, none")
	wavPath := pflag.String("audio-wav-path", "out.wav", "the file to write the audio to if --audio=wav")
	windowTitle := pflag.String("window-title", "avplay", "the title of the video window")
	headless := pflag.Bool("headless", false, "present the video into memory instead of a window")
	snapshotPath := pflag.String("snapshot", "", "save the last presented frame to this .png/.jpg file")
	snapshotMaxWidth := pflag.Int("snapshot-max-width", 0, "downscale the snapshot to this width")
	statsInterval := pflag.Duration("stats-interval", 0, "log the playback statistics with this interval")
	pflag.Parse()
	if len(pflag.Args()) != 1 {
		pflag.Usage()
		os.Exit(1)
	}
	url := pflag.Arg(0)

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func(context.Context) { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	avlogger.SetupFFmpegLogging(ctx)

	cfg := player.DefaultConfig()
	if *configPath != "" {
		b, err := os.ReadFile(*configPath)
		if err != nil {
			l.Fatal(err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			l.Fatalf("unable to parse '%s': %v", *configPath, err)
		}
	}

	flags := pflag.CommandLine
	if flags.Changed("frame-cap") {
		cfg.FrameCap = *frameCap
	}
	if flags.Changed("frame-rate") {
		r, err := types.RationalFromString(*frameRate)
		if err != nil {
			l.Fatal(err)
		}
		cfg.FrameRateOverride = r
	}
	if flags.Changed("pixel-format") {
		cfg.PixelFormat = *pixelFormat
	}
	if flags.Changed("sample-format") {
		f, err := resampler.OutputFormatFromString(*sampleFormat)
		if err != nil {
			l.Fatal(err)
		}
		cfg.SampleFormat = f
	}
	if flags.Changed("resolution") {
		if err := cfg.OutputResolution.Parse(*resolution); err != nil {
			l.Fatal(err)
		}
	}
	if flags.Changed("audio-mode") {
		if err := cfg.AudioMode.UnmarshalText([]byte(*audioMode)); err != nil {
			l.Fatal(err)
		}
	}
	if flags.Changed("pacing-mode") {
		if err := cfg.PacingMode.UnmarshalText([]byte(*pacingMode)); err != nil {
			l.Fatal(err)
		}
	}
	if flags.Changed("serialize-decoder") {
		cfg.SerializeDecoder = *serializeDecoder
	}
	if *audioOut == "none" {
		cfg.Decoder.DisableAudio = true
	}

	p, err := player.New(cfg)
	if err != nil {
		l.Fatal(err)
	}
	defer func() {
		if err := p.Close(ctx); err != nil {
			l.Error(err)
		}
	}()

	l.Debugf("opening '%s'...", url)
	if err := p.Open(ctx, url, secret.New(os.Getenv(authKeyEnvVar))); err != nil {
		l.Fatal(err)
	}

	surf, err := p.CreateSurface(ctx, surfaceFactory(*windowTitle, *headless))
	if err != nil {
		l.Fatal(err)
	}
	l.Debugf("presenting into %s at %s fps", surf, p.FrameRate())

	var out audiooutput.Output
	switch *audioOut {
	case "device":
		out = otodevice.New()
	case "wav":
		out = wavfile.New(*wavPath)
	case "discard":
		out = audiooutput.NewDiscard()
	case "none":
	default:
		l.Fatalf("unknown audio output '%s'", *audioOut)
	}

	if *statsInterval > 0 {
		observability.Go(ctx, func(ctx context.Context) {
			logStats(ctx, *statsInterval, &p.Stats)
		})
	}

	stats, err := p.Play(ctx, out)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		l.Warnf("interrupted")
	default:
		l.Error(err)
	}
	if stats != nil {
		fmt.Printf("%s\n", stats)
	}

	if *snapshotPath != "" {
		s, ok := surf.(snapshotter)
		if !ok {
			l.Fatalf("%T does not support snapshots", surf)
		}
		if err := s.SaveSnapshot(ctx, *snapshotPath, *snapshotMaxWidth); err != nil {
			l.Fatal(err)
		}
	}
}
