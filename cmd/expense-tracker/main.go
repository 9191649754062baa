package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/expense-tracker/internal/auth"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/logging"
	"github.com/zombor/expense-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port              int
	dbPath            string
	store             string
	storagePath       string
	recognizer        string
	normalizer        string
	geminiKey         string
	geminiModel       string
	ollamaURL         string
	ollamaVisionModel string
	ollamaModel       string
	openaiKey         string
	openaiModel       string
	openaiURL         string
	jwtSecret         string
	tokenTTLHours     int
	secureCookies     bool
	allowedOrigin     string
	ocrConcurrency    int
	receiptGraceHours int
	logLevel          string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	var cfg config
	fs := ff.NewFlagSet("expense-tracker")
	fs.IntVar(&cfg.port, 0, "port", 8080, "HTTP server port")
	fs.StringVar(&cfg.dbPath, 0, "db", "expense-tracker.db", "Database file path")
	fs.StringVar(&cfg.store, 0, "store", "bolt", "Record store: 'bolt' or 'sqlite'")
	fs.StringVar(&cfg.storagePath, 0, "storage", "./receipts", "Receipt image directory")
	fs.StringVar(&cfg.recognizer, 0, "recognizer", "gemini", "Text recognizer: 'gemini' or 'ollama'")
	fs.StringVar(&cfg.normalizer, 0, "normalizer", "openai", "AI normalizer: 'openai', 'gemini' or 'ollama'")
	fs.StringVar(&cfg.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&cfg.geminiModel, 0, "gemini-model", "gemini-2.5-pro", "Google Gemini model name")
	fs.StringVar(&cfg.ollamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	fs.StringVar(&cfg.ollamaVisionModel, 0, "ollama-vision-model", "llava", "Ollama model for reading receipts (e.g., llava, qwen2-vl)")
	fs.StringVar(&cfg.ollamaModel, 0, "ollama-model", "llama3.1", "Ollama model for categorizing text")
	fs.StringVar(&cfg.openaiKey, 0, "openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.openaiModel, 0, "openai-model", "gpt-4o-mini", "OpenAI model name")
	fs.StringVar(&cfg.openaiURL, 0, "openai-url", "", "OpenAI-compatible API base URL (optional)")
	fs.StringVar(&cfg.jwtSecret, 0, "jwt-secret", "", "Secret for signing session tokens")
	fs.IntVar(&cfg.tokenTTLHours, 0, "token-ttl-hours", 24*7, "Session lifetime in hours")
	fs.BoolVar(&cfg.secureCookies, 0, "secure-cookies", "Mark session cookies Secure (serve over HTTPS)")
	fs.StringVar(&cfg.allowedOrigin, 0, "allowed-origin", "", "Browser origin allowed to call the API cross-site (optional)")
	fs.IntVar(&cfg.ocrConcurrency, 0, "ocr-concurrency", 3, "Receipts read at the same time")
	fs.IntVar(&cfg.receiptGraceHours, 0, "receipt-grace-hours", 24, "Hours a scanned receipt may stay unsaved before it is deleted (0 disables)")
	fs.StringVar(&cfg.logLevel, 0, "log-level", "info", "Log level: debug, info, warn or error")
	showVersion := fs.BoolLong("version", "Show version information")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logging.Setup(logging.ParseLevel(cfg.logLevel))

	if err := run(cfg); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config) (expense.DB, error) {
	switch cfg.store {
	case "bolt":
		return expense.NewBoltDB(cfg.dbPath)
	case "sqlite":
		return expense.NewSQLiteDB(cfg.dbPath)
	default:
		return nil, fmt.Errorf("invalid store %q: use bolt or sqlite", cfg.store)
	}
}

func keyOrEnv(key, env string) string {
	if key != "" {
		return key
	}
	return os.Getenv(env)
}

// engines builds the recognizer and normalizer. A Gemini client serving both
// roles is shared.
func engines(cfg config) (scanning.Recognizer, scanning.Normalizer, error) {
	var gemini *scanning.Gemini
	geminiClient := func() (*scanning.Gemini, error) {
		if gemini != nil {
			return gemini, nil
		}
		apiKey := keyOrEnv(cfg.geminiKey, "GEMINI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini...", "model", cfg.geminiModel)
		var err error
		gemini, err = scanning.NewGemini(apiKey, cfg.geminiModel)
		return gemini, err
	}

	var (
		recognizer scanning.Recognizer
		err        error
	)
	switch cfg.recognizer {
	case "gemini":
		recognizer, err = geminiClient()
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", cfg.ollamaURL, "model", cfg.ollamaVisionModel)
		recognizer, err = scanning.NewOllama(cfg.ollamaURL, cfg.ollamaVisionModel, cfg.ollamaModel)
	default:
		err = fmt.Errorf("invalid recognizer %q: use gemini or ollama", cfg.recognizer)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("initializing recognizer: %w", err)
	}

	var normalizer scanning.Normalizer
	switch cfg.normalizer {
	case "openai":
		apiKey := keyOrEnv(cfg.openaiKey, "OPENAI_API_KEY")
		slog.Info("Initializing OpenAI normalizer...", "model", cfg.openaiModel)
		normalizer, err = scanning.NewOpenAI(apiKey, cfg.openaiModel, cfg.openaiURL)
	case "gemini":
		normalizer, err = geminiClient()
	case "ollama":
		slog.Info("Initializing Ollama normalizer...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		normalizer, err = scanning.NewOllama(cfg.ollamaURL, cfg.ollamaVisionModel, cfg.ollamaModel)
	default:
		err = fmt.Errorf("invalid normalizer %q: use openai, gemini or ollama", cfg.normalizer)
	}
	if err != nil {
		recognizer.Close()
		return nil, nil, fmt.Errorf("initializing normalizer: %w", err)
	}
	return recognizer, normalizer, nil
}

func run(cfg config) error {
	if cfg.jwtSecret == "" {
		return errors.New("a session secret is required: set --jwt-secret or EXPENSE_TRACKER_JWT_SECRET")
	}

	slog.Info("Initializing database...", "store", cfg.store, "path", cfg.dbPath)
	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	recognizer, normalizer, err := engines(cfg)
	if err != nil {
		return err
	}
	defer recognizer.Close()
	if any(normalizer) != any(recognizer) {
		defer normalizer.Close()
	}

	slog.Info("Initializing storage...", "path", cfg.storagePath)
	store, err := expense.NewLocalStorage(cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := expense.NewMetrics(reg)

	service := expense.NewService(db, recognizer, normalizer, store, metrics)
	service.SetOCRConcurrency(cfg.ocrConcurrency)

	server := expense.NewServer(service, expense.ServerConfig{
		Sessions:      auth.NewJWTManager(cfg.jwtSecret, time.Duration(cfg.tokenTTLHours)*time.Hour),
		SecureCookies: cfg.secureCookies,
		AllowedOrigin: cfg.allowedOrigin,
		Metrics:       metrics,
		Gatherer:      reg,
	})

	addr := fmt.Sprintf(":%d", cfg.port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.receiptGraceHours > 0 {
		go sweepReceipts(ctx, service, time.Duration(cfg.receiptGraceHours)*time.Hour)
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// sweepReceipts removes abandoned receipt images every hour until ctx ends
func sweepReceipts(ctx context.Context, service *expense.Service, grace time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		if _, err := service.SweepReceipts(grace); err != nil {
			slog.Warn("Receipt sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
