package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-extractor/internal/enhance"
	"github.com/zombor/receipt-extractor/internal/receipt"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	defaults := enhance.DefaultOptions()

	flags := ff.NewFlagSet("receipt-extractor")
	var (
		port             = flags.IntLong("port", 8080, "HTTP server port")
		provider         = flags.StringLong("provider", "gemini", "Model provider: 'gemini', 'ollama' or 'openai'")
		geminiKey        = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel      = flags.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL        = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel      = flags.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		openaiKey        = flags.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel      = flags.StringLong("openai-model", scanning.DefaultOpenAIModel, "OpenAI model name")
		openaiURL        = flags.StringLong("openai-url", "", "Base URL of an OpenAI compatible API (optional)")
		stagingPath      = flags.StringLong("staging", receipt.DefaultStagingDir(), "Directory for staging uploads while they are analyzed")
		timeout          = flags.DurationLong("timeout", 2*time.Minute, "Timeout for each model call (0 disables it)")
		normalizeAmounts = flags.BoolLong("normalize-amounts", "Format extracted amounts with two decimals and no currency markers")
		blockSize        = flags.IntLong("block-size", defaults.BlockSize, "Adaptive threshold neighborhood size (odd)")
		offset           = flags.Float64Long("threshold-offset", defaults.Offset, "Adaptive threshold offset")
		openingKernel    = flags.IntLong("opening-kernel", defaults.OpeningKernel, "Morphological opening kernel size")
		contrast         = flags.Float64Long("contrast", defaults.Contrast, "Contrast enhancement factor")
		sharpness        = flags.Float64Long("sharpness", defaults.Sharpness, "Sharpness enhancement factor")
		file             = flags.StringLong("file", "", "Analyze this file, print the result and exit")
		enhancedOut      = flags.StringLong("enhanced-out", "", "With --file, also write the enhanced image to this path")
		showVersion      = flags.BoolLong("version", "Show version information")
		_                = flags.StringLong("config", "", "Config file (optional)")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_EXTRACTOR"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	normalizer, err := enhance.New(enhance.Options{
		BlockSize:     *blockSize,
		Offset:        *offset,
		OpeningKernel: *openingKernel,
		Contrast:      *contrast,
		Sharpness:     *sharpness,
	})
	if err != nil {
		slog.Error("Invalid enhancement options", "error", err)
		os.Exit(1)
	}

	// Initialize model based on provider
	var model scanning.Model
	switch *provider {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini model...", "model", *geminiModel)
		model, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama model...", "url", *ollamaURL, "model", *ollamaModel)
		model, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "openai":
		apiKey := *openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("OpenAI API key is required. Set --openai-key flag or OPENAI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing OpenAI model...", "model", *openaiModel, "url", *openaiURL)
		model, err = scanning.NewOpenAI(apiKey, *openaiModel, *openaiURL)
		if err != nil {
			slog.Error("Failed to initialize OpenAI", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid provider", "provider", *provider, "valid", "gemini, ollama or openai")
		os.Exit(1)
	}
	defer model.Close()

	store, err := receipt.NewLocalStorage(*stagingPath)
	if err != nil {
		slog.Error("Failed to initialize staging storage", "error", err)
		os.Exit(1)
	}

	service := receipt.NewService(normalizer, model, store, receipt.ServiceOptions{
		Timeout:          *timeout,
		NormalizeAmounts: *normalizeAmounts,
	})

	if *file != "" {
		if err := analyzeFile(service, *file, *enhancedOut); err != nil {
			slog.Error("Failed to analyze receipt", "file", *file, "error", err)
			model.Close()
			os.Exit(1)
		}
		return
	}

	server := receipt.NewServer(service)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "provider", *provider)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), *timeout+10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down cleanly", "error", err)
	}
}

// analyzeFile runs one analysis and prints the result as indented JSON
func analyzeFile(service *receipt.Service, path, enhancedOut string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	filename := filepath.Base(path)

	if enhancedOut != "" {
		png, err := service.Enhance(filename, data, contentType)
		if err != nil {
			return err
		}
		if err := os.WriteFile(enhancedOut, png, 0644); err != nil {
			return fmt.Errorf("writing enhanced image: %w", err)
		}
		slog.Info("Wrote enhanced image", "path", enhancedOut)
	}

	analysis, err := service.Analyze(context.Background(), filename, data, contentType)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "Processing time: %.2f seconds\n", analysis.Duration.Seconds())
	return nil
}
