package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maastricht-university/edmo-capture/clients"
	cfg "github.com/maastricht-university/edmo-capture/config"
	"github.com/maastricht-university/edmo-capture/media"
	"github.com/maastricht-university/edmo-capture/orchestrator"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "edmo-capture",
		Short:        "Sample webcam frames and microphone recordings for emotion and speech analysis",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: config/$CONFIG_ENV/config.yaml)")
	root.PersistentFlags().String("url", "", "analysis service base URL")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd(&configFile), configCmd(&configFile))
	return root
}

func runCmd(configFile *string) *cobra.Command {
	var (
		duration time.Duration
		opts     runOptions
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track the camera (and optionally record audio) until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := cfg.Load(*configFile, cmd.Flags())
			if err != nil {
				return err
			}
			log, err := newLogger(conf)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return run(ctx, conf, log, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("video", "", "image file served as the camera")
	cmd.Flags().String("audio", "", "audio file served as the microphone")
	cmd.Flags().Duration("interval", 0, "frame capture period")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")
	cmd.Flags().BoolVar(&opts.record, "record", false, "record audio while running")
	cmd.Flags().DurationVar(&opts.report, "report", 5*time.Second, "how often to log the latest results")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the final session status as JSON")
	return cmd
}

func configCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := cfg.Load(*configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return cfg.Write(cmd.OutOrStdout(), conf)
		},
	}
}

func newLogger(conf *cfg.Root) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(conf.App.LogLvl)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l.WithFields(logrus.Fields{"app": conf.App.Name, "version": conf.App.Version}), nil
}

type runOptions struct {
	record bool
	report time.Duration
	json   bool
}

func run(ctx context.Context, conf *cfg.Root, log *logrus.Entry, opts runOptions, out io.Writer) error {
	platform := &media.FilePlatform{
		VideoPath: conf.Devices.Video,
		AudioPath: conf.Devices.Audio,
		ChunkSize: conf.Devices.ChunkSize,
		Timeslice: conf.Devices.Timeslice,
	}
	client := clients.NewHTTP(conf.Services.Analysis.URL, conf.Services.Analysis.Timeout)

	o := orchestrator.New(platform, client, orchestrator.Options{
		Interval:     conf.Capture.Interval,
		DiscardStale: conf.Capture.DiscardStale,
		JPEGQuality:  conf.Capture.JPEGQuality,
		Filename:     conf.Recording.Filename,
		Logger:       log,
	})
	defer o.Teardown()

	if err := o.StartCamera(ctx); err != nil {
		return err
	}
	if err := o.StartTracking(); err != nil {
		return err
	}
	if opts.record {
		if err := o.StartRecording(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if opts.report <= 0 {
			return nil
		}
		t := time.NewTicker(opts.report)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if r, ok := o.FrameResult(); ok {
					log.WithFields(logrus.Fields{"seq": r.Seq, "emotion": r.Emotion}).Info("latest frame")
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		o.Teardown()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	o.Wait()
	if opts.json {
		return writeStatus(out, o.Status())
	}
	printSummary(out, o.Status())
	return nil
}

func writeStatus(w io.Writer, st orchestrator.Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func printSummary(w io.Writer, st orchestrator.Status) {
	fmt.Fprintf(w, "session %s\n", st.Session)
	if st.Frame != nil {
		fmt.Fprintf(w, "  emotion:     %s (tick %d)\n", st.Frame.Emotion, st.Frame.Seq)
	}
	if a := st.Audio; a != nil {
		fmt.Fprintf(w, "  language:    %s\n", a.Language)
		fmt.Fprintf(w, "  transcript:  %s\n", a.Transcript)
		fmt.Fprintf(w, "  speech rate: %.2f wpm\n", a.SpeechRateWPM)
		fmt.Fprintf(w, "  fillers:     %d (rate %.3f) %v\n", a.FillerCount, a.FillerRate, a.FillerWordsUsed)
	}
}
