// Codefusion is a meeting preparation assistant.
//
// Each participant of a meeting holds a short chat with a language
// model that asks what they want to discuss and maintains their agenda
// for the meeting. The server exposes the users, meetings and
// conversations over a JSON HTTP API with voice input, speech output,
// live WebSocket updates and agenda exports.
//
// Usage:
//
//	codefusion serve              Start the API server
//	codefusion init [dir]         Write an example config.yaml
//	codefusion chat <title>       Prepare a meeting in the terminal
//	codefusion version            Print version and build information
//	codefusion -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lukas-holzner/codefusion-hackathon/internal/api"
	"github.com/lukas-holzner/codefusion-hackathon/internal/buildinfo"
	"github.com/lukas-holzner/codefusion-hackathon/internal/config"
	"github.com/lukas-holzner/codefusion-hackathon/internal/connwatch"
	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
	"github.com/lukas-holzner/codefusion-hackathon/internal/events"
	"github.com/lukas-holzner/codefusion-hackathon/internal/llm"
	"github.com/lukas-holzner/codefusion-hackathon/internal/metrics"
	"github.com/lukas-holzner/codefusion-hackathon/internal/prep"
	"github.com/lukas-holzner/codefusion-hackathon/internal/store"
)

// main only gathers the OS environment and hands it to [run], so the
// whole lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Logs go to stdout; args is os.Args[1:].
// Arguments are parsed by hand because the flag package keeps global
// state that breaks parallel tests.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "chat":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: codefusion chat <meeting title> [-- description]")
		}
		return runChatCommand(ctx, stdin, stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.BuildInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Codefusion - Meeting Preparation Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: codefusion [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the API server")
	fmt.Fprintln(w, "  init [dir]     Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  chat <title>   Prepare a meeting in the terminal")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/codefusion/config.yaml, /etc/codefusion/config.yaml")
	return nil
}

// runServe loads the config, opens the store, wires the provider,
// metrics and preparation service into the API server, and blocks until
// ctx is cancelled or SIGINT/SIGTERM arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting codefusion", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Validate has already accepted the level.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger = config.NewLogger(stdout, level, cfg.LogFormat)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"database", cfg.Database.Path,
	)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.Open(cfg.Database.Driver, cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	prov, err := newProviders(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	met := metrics.New(reg)
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	// Turns degrade to the apology reply while a provider is down, so
	// reachability is watched rather than required at startup.
	watch := connwatch.NewManager(connwatch.DefaultSchedule(), met.ProviderState, logger)
	defer watch.Stop()
	for name, p := range prov.probes {
		watch.Watch(ctx, name, p.Ping)
	}

	bus := events.New()
	proc := conversation.NewProcessor(prov.chat, conversation.Options{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.RequestTimeout,
	}, logger, met)

	svc := prep.New(prep.Deps{
		Store:       st,
		Processor:   proc,
		Transcriber: prov.stt,
		Synthesizer: prov.tts,
		Bus:         bus,
		Metrics:     met,
		Logger:      logger,
	}, prep.Config{
		MaxUploadBytes: cfg.Audio.MaxUploadBytes,
		AllowedTypes:   cfg.Audio.AllowedTypes,
		DefaultVoice:   cfg.OpenAI.DefaultVoice,
	})

	server := api.NewServer(api.Options{
		Address:        cfg.Listen.Address,
		Port:           cfg.Listen.Port,
		PublicURL:      cfg.PublicURL,
		Metrics:        metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		MaxUploadBytes: cfg.Audio.MaxUploadBytes,
		Providers:      watch,
	}, st, svc, bus, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("codefusion stopped")
	return nil
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// providers are the model capabilities selected by the config. stt and
// tts are nil unless an OpenAI key is configured. probes holds every
// client in use, by provider name.
type providers struct {
	chat   llm.ChatCompleter
	stt    llm.Transcriber
	tts    llm.Synthesizer
	probes map[string]llm.Pinger
}

func newProviders(cfg *config.Config, logger *slog.Logger) (providers, error) {
	p := providers{probes: make(map[string]llm.Pinger)}

	var openai *llm.OpenAIClient
	if cfg.OpenAI.Configured() {
		openai = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:             cfg.OpenAI.APIKey,
			BaseURL:            cfg.OpenAI.BaseURL,
			TranscriptionModel: cfg.OpenAI.TranscriptionModel,
			SpeechModel:        cfg.OpenAI.SpeechModel,
		}, logger)
		p.stt, p.tts = openai, openai
		p.probes["openai"] = openai
	}

	switch cfg.LLM.Provider {
	case "openai":
		if openai == nil {
			return p, errors.New("openai provider selected without an api key")
		}
		p.chat = openai
	case "ollama":
		c := llm.NewOllamaClient(cfg.Ollama.URL, logger)
		p.chat, p.probes["ollama"] = c, c
	case "anthropic":
		c := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
		p.chat, p.probes["anthropic"] = c, c
	default:
		return p, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}

	logger.Info("model provider configured",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"voice", openai != nil,
	)
	return p, nil
}
