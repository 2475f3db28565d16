// Command stillcast turns a still image and a soundtrack into an MP4 whose
// length matches the audio. It runs one conversion from the command line or
// serves conversions over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/stillcast/internal/bootstrap"
	"github.com/maauso/stillcast/internal/compose"
	"github.com/maauso/stillcast/internal/config"
	"github.com/maauso/stillcast/internal/server"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(stderr)
		return exitOK
	}

	switch args[0] {
	case "convert":
		return convertCmd(ctx, args[1:], stderr)
	case "serve":
		return serveCmd(ctx, args[1:], stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

type convertArgs struct {
	Image     string
	Audio     string
	Output    string
	OutputDir string
	Publish   bool
}

func parseConvertArgs(args []string, stderr io.Writer) (convertArgs, error) {
	var ca convertArgs

	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&ca.Image, "image", "", "still image (.jpg, .jpeg or .png)")
	fs.StringVar(&ca.Audio, "audio", "", "soundtrack (.mp3 or .wav)")
	fs.StringVar(&ca.Output, "output", "", "output video (.mp4)")
	fs.StringVar(&ca.OutputDir, "output-dir", "", "write <audio name>.mp4 into this directory")
	fs.BoolVar(&ca.Publish, "publish", false, "upload the video to S3 when configured")

	if err := fs.Parse(args); err != nil {
		return ca, err
	}
	if fs.NArg() > 0 {
		return ca, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if ca.Output != "" && ca.OutputDir != "" {
		return ca, errors.New("-output and -output-dir are mutually exclusive")
	}
	return ca, nil
}

func (ca convertArgs) request() compose.Request {
	output := ca.Output
	if output == "" && ca.OutputDir != "" && ca.Audio != "" {
		output = compose.OutputPathFor(ca.Audio, ca.OutputDir)
	}
	return compose.Request{
		ImagePath:  ca.Image,
		AudioPath:  ca.Audio,
		OutputPath: output,
		Publish:    ca.Publish,
	}
}

func convertCmd(ctx context.Context, args []string, stderr io.Writer) int {
	ca, err := parseConvertArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: load config: %v\n", err)
		return exitFailure
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: initialize dependencies: %v\n", err)
		return exitFailure
	}

	res, err := deps.Composer.Convert(ctx, ca.request())
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if compose.IsValidationError(err) {
			return exitUsage
		}
		return exitFailure
	}

	fmt.Fprintf(stderr, "video created: %s\n", res.OutputPath)
	if res.VideoURL != "" {
		fmt.Fprintf(stderr, "published: %s\n", res.VideoURL)
	}
	return exitOK
}

func serveCmd(ctx context.Context, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	port := fs.Int("port", 0, "listen port (default $PORT or 8080)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: load config: %v\n", err)
		return exitFailure
	}
	if *port > 0 {
		cfg.Port = *port
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := serve(ctx, cfg, logger); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting stillcast server",
		slog.String("addr", cfg.Addr()),
		slog.String("video_codec", cfg.VideoCodec),
		slog.String("fallback_video_codec", cfg.FallbackVideoCodec),
		slog.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs),
		slog.String("disposal", cfg.Disposal),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	handlers := server.NewHandlers(deps.Conversions, logger)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.NewRouter(handlers, logger, server.Config{AllowedOrigins: cfg.AllowedOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown failed: %w", err))
		}

		// Running conversions still owe their derived images a disposal.
		logger.Info("waiting for running conversions")
		if err := deps.Conversions.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("conversions did not finish: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage:
  stillcast convert -image IMAGE -audio AUDIO (-output FILE.mp4 | -output-dir DIR) [-publish]
  stillcast serve [-port PORT]

Images: .jpg, .jpeg, .png. Audio: .mp3, .wav. Output: .mp4.
Configuration is read from the environment (HOST, PORT, FFMPEG_PATH, VIDEO_CODEC,
DISPOSAL, S3_BUCKET, LOG_LEVEL, ...).
`)
}
