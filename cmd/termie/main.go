package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termie/internal/bridge"
	"github.com/GriffinCanCode/termie/internal/buffer"
	"github.com/GriffinCanCode/termie/internal/classifier"
	"github.com/GriffinCanCode/termie/internal/editor"
	"github.com/GriffinCanCode/termie/internal/infrastructure/config"
	"github.com/GriffinCanCode/termie/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termie/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termie/internal/infrastructure/server"
	"github.com/GriffinCanCode/termie/internal/pty"
	"github.com/GriffinCanCode/termie/internal/render"
	"github.com/GriffinCanCode/termie/internal/terminal"
	"github.com/GriffinCanCode/termie/internal/viewer"
)

func main() {
	configPath := flag.String("config", "", "Config file (.yaml, .yml or .toml); defaults to $TERMIE_CONFIG")
	shell := flag.String("shell", "", "Shell executable")
	host := flag.String("host", "", "HTTP listen host")
	port := flag.String("port", "", "HTTP listen port")
	mode := flag.String("mode", "", "Pty read mode: background or inline")
	classify := flag.Bool("classify", false, "Classify submitted lines with a language model")
	answer := flag.Bool("answer", false, "Send natural-language lines to the model for a reply")
	dev := flag.Bool("dev", false, "Development mode (colored logs, debug level)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the file and the environment, but only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "shell":
			cfg.Shell.Path = *shell
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "mode":
			cfg.Bridge.ReadMode = *mode
		case "classify":
			cfg.Classifier.Enabled = *classify
		case "answer":
			cfg.Classifier.Answer = *answer
		case "dev":
			cfg.Logging.Development = *dev
			if *dev {
				cfg.Logging.Level = "debug"
			}
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	status, err := run(cfg)
	if err != nil {
		log.Fatalf("termie: %v", err)
	}
	if !status.Success() {
		os.Exit(1)
	}
}

func run(cfg *config.Config) (pty.ExitStatus, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return pty.ExitStatus{}, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()

	mode, err := bridge.ParseMode(cfg.Bridge.ReadMode)
	if err != nil {
		return pty.ExitStatus{}, err
	}

	font, err := render.NewMonoFont(cfg.Render.FontSize)
	if err != nil {
		return pty.ExitStatus{}, fmt.Errorf("failed to load font: %w", err)
	}
	pipeline := render.NewPipeline(font, render.Options{
		LinePitch:  cfg.Render.LinePitch,
		Margin:     cfg.Render.Margin,
		Background: cfg.Render.Background,
		Metrics:    metrics,
	})

	session, err := pty.Spawn(pty.Options{
		Shell: cfg.Shell.Path,
		Unset: cfg.Shell.Unset,
		Set: map[string]string{
			"PS1":  cfg.Shell.Prompt,
			"TERM": cfg.Shell.Term,
		},
		Cols:   cfg.Shell.Cols,
		Rows:   cfg.Shell.Rows,
		Logger: logger.Component(logging.Pty),
	})
	if err != nil {
		return pty.ExitStatus{}, err
	}
	defer session.Close()

	inbox := bridge.NewInbox()

	var dispatcher *classifier.Dispatcher
	var loopDispatcher terminal.Dispatcher
	var breaker server.Breaker
	if cfg.Classifier.Enabled {
		client := classifier.NewClient(classifier.Options{
			URL:     cfg.Classifier.URL,
			Model:   cfg.Classifier.Model,
			Timeout: cfg.Classifier.Timeout.Std(),
			RPS:     cfg.Classifier.RPS,
			Retries: 2,
			Logger:  logger.Component(logging.Classifier),
		})
		opts := classifier.DispatcherOptions{
			Timeout: cfg.Classifier.Timeout.Std(),
			Logger:  logger.Component(logging.Classifier),
			Metrics: metrics,
		}
		if cfg.Classifier.Answer {
			opts.Answerer = client
		}
		dispatcher = classifier.NewDispatcher(client, inbox.Classifier, opts)
		loopDispatcher = dispatcher
		breaker = client
		logger.Info("Classifier enabled",
			zap.String("url", cfg.Classifier.URL),
			zap.String("model", cfg.Classifier.Model),
			zap.Bool("answer", cfg.Classifier.Answer),
		)
	}

	var term *terminal.Terminal
	hub := viewer.NewHub(viewer.Options{
		Width:   cfg.Render.Width,
		Height:  cfg.Render.Height,
		OnKey:   func(ev editor.KeyEvent) { term.SendKey(ev) },
		Logger:  logger.Component(logging.Viewer),
		Metrics: metrics,
	})

	term = terminal.New(terminal.Options{
		Session:  session,
		Mode:     mode,
		Window:   hub,
		Pipeline: pipeline,
		Output:   buffer.NewOutput(cfg.Buffers.Output),
		Editor: editor.New(editor.Options{
			Cap:      cfg.Buffers.Input,
			Classify: loopDispatcher != nil,
			Logger:   logger.Component(logging.Terminal),
		}),
		Inbox:      inbox,
		Dispatcher: loopDispatcher,
		Tick:       cfg.Bridge.Tick.Std(),
		ReadChunk:  cfg.Buffers.ReadChunk,
		Logger:     logger.Component(logging.Terminal),
		Metrics:    metrics,
	})

	srv, err := server.New(server.Deps{
		Config:     cfg,
		Session:    term,
		Hub:        hub,
		Classifier: breaker,
		Metrics:    metrics,
		Logger:     logger.Component(logging.HTTP),
	})
	if err != nil {
		return pty.ExitStatus{}, err
	}

	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()

	go hub.Run(serveCtx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Run(serveCtx) }()

	logger.Info("termie started",
		zap.String("session_id", session.ID.String()),
		zap.String("shell", session.Shell),
		zap.Int("pid", session.PID()),
		zap.String("url", "http://"+cfg.Addr()+"/"),
	)

	loopErr := make(chan error, 1)
	go func() { loopErr <- term.Run(ctx) }()

	serverDone := false
	select {
	case err := <-serveErr:
		serverDone = true
		if err != nil {
			stop()
			<-loopErr
			return pty.ExitStatus{}, fmt.Errorf("http server: %w", err)
		}
		<-loopErr
	case <-loopErr:
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}

	cancelServe()
	if !serverDone {
		if err := <-serveErr; err != nil {
			return pty.ExitStatus{}, fmt.Errorf("http server: %w", err)
		}
	}

	if ctx.Err() != nil {
		logger.Info("Interrupted, shutting down")
		return pty.ExitStatus{}, nil
	}

	status := term.ExitStatus()
	logger.Info("Shell exited", zap.String("status", status.String()))
	return status, nil
}
