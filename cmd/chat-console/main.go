// cmd/chat-console/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"insurebot-chat/internal/common/config"
	httpclient "insurebot-chat/internal/common/http"
	"insurebot-chat/internal/common/logger"
	"insurebot-chat/internal/common/observability"
	"insurebot-chat/internal/console"
	"insurebot-chat/internal/session"
	"insurebot-chat/internal/speech"
)

type options struct {
	configPath string
	relayURL   string
	style      string
	width      int
	muted      bool
	noSpeech   bool
	metrics    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "chat-console",
		Short: "Talk to the insurance advisor from the terminal",
		Long: `chat-console keeps one conversation in memory, sends every turn to the
chat relay and prints the advisor's replies. Replies are read aloud when a
text-to-speech engine such as espeak or say is installed.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, opts)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a config.yaml (default: search ./configs)")
	cmd.Flags().StringVar(&opts.relayURL, "relay", "", "relay base URL (overrides session.relay_url)")
	cmd.Flags().StringVar(&opts.style, "style", "dark", "markdown style: dark, light, notty, ascii or a style file")
	cmd.Flags().IntVar(&opts.width, "width", 80, "word wrap width for replies")
	cmd.Flags().BoolVar(&opts.muted, "mute", false, "start with spoken replies muted")
	cmd.Flags().BoolVar(&opts.noSpeech, "no-speech", false, "disable text-to-speech and dictation")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "serve session metrics on metrics.listen_address")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func run(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	// stdout belongs to the conversation
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	zapLog := logger.FromConfig(logCfg)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs, err := observability.New("chat-console")
	if err != nil {
		zapLog.Warn("metrics exporter unavailable", zap.Error(err))
	}
	defer obs.Shutdown()

	if opts.metrics {
		go serveMetrics(cfg.Metrics.ListenAddress, zapLog)
	}

	relayURL := cfg.Session.RelayURL
	if opts.relayURL != "" {
		relayURL = opts.relayURL
	}

	out := cmd.OutOrStdout()
	sess := session.New(
		session.NewHTTPTransport(relayURL, httpclient.NewClient(0)),
		session.WithNotifier(console.NewNotifier(out)),
		session.WithLogger(log),
		session.WithObservability(obs),
		session.WithTimeout(config.GetDuration(cfg.Session.SendTimeout)),
	)
	zapLog.Info("session started", zap.String("sessionId", sess.ID()), zap.String("relay", relayURL))

	speechOn := cfg.Speech.Enabled && !opts.noSpeech
	consoleOpts := []console.Option{
		console.WithLogger(log),
		console.Muted(opts.muted),
		console.SpeechOff(!speechOn),
		console.WithRenderer(newRenderer(opts, zapLog)),
	}

	if speechOn {
		var synth speech.Synthesizer
		if s, err := speech.DetectSynthesizer(cfg.Speech); err == nil {
			synth = s
			zapLog.Info("speech synthesis enabled", zap.String("engine", s.Path))
		} else {
			zapLog.Info("speech synthesis not available", zap.Error(err))
		}
		consoleOpts = append(consoleOpts, console.WithPlayer(speech.NewPlayer(synth,
			speech.WithVoice(speech.Voice{Rate: cfg.Speech.Rate, Pitch: cfg.Speech.Pitch, Volume: cfg.Speech.Volume}),
			speech.WithMaxChars(cfg.Speech.MaxChars),
			speech.WithLogger(log),
			speech.WithObservability(obs),
		)))

		if r, err := speech.DetectRecognizer(cfg.Speech); err == nil {
			consoleOpts = append(consoleOpts, console.WithRecognizer(r))
		}
	}

	return console.New(sess, out, consoleOpts...).Run(cmd.Context(), cmd.InOrStdin())
}

func newRenderer(opts *options, zapLog *zap.Logger) console.Renderer {
	r, err := console.NewMarkdownRenderer(opts.style, opts.width)
	if err != nil {
		zapLog.Warn("falling back to plain output", zap.Error(err))
		return console.PlainRenderer{}
	}
	return r
}

func serveMetrics(addr string, zapLog *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	zapLog.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		zapLog.Warn("metrics server failed", zap.Error(err))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
