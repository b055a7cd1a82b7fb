package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/medverify/internal/catalog"
	"github.com/zombor/medverify/internal/imagesource"
	"github.com/zombor/medverify/internal/lookup"
	"github.com/zombor/medverify/internal/scanning"
	"github.com/zombor/medverify/internal/verification"
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

	fs := ff.NewFlagSet("medverify")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		catalogPath  = fs.StringLong("catalog", "", "Registry feed (JSON) to import on startup")
		dbPath       = fs.StringLong("db", "medverify.db", "Catalog database file path")
		recognizer   = fs.StringLong("recognizer", "tesseract", "Text recognizer: 'tesseract', 'gemini' or 'ollama'")
		tessLang     = fs.StringLong("tesseract-lang", "eng", "Tesseract language")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl, minicpm-v)")
		highConf     = fs.Float64Long("high-confidence", verification.DefaultPolicy.HighAbove, "Text confidence above which lookup proceeds automatically")
		mediumConf   = fs.Float64Long("medium-confidence", verification.DefaultPolicy.MediumAbove, "Text confidence above which the user is asked to confirm")
		workers      = fs.IntLong("workers", runtime.NumCPU(), "Concurrent decode/recognition workers")
		cameraDir    = fs.StringLong("camera-dir", "", "Spool directory of a capture station (optional)")
		cameraFacing = fs.StringLong("camera-facing", "back", "Facing reported by the capture station")
		maxUploadMB  = fs.IntLong("max-upload-mb", 5, "Maximum upload size in MB")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel     = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("MEDVERIFY"),
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

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	policy := verification.Policy{HighAbove: *highConf, MediumAbove: *mediumConf}
	if err := policy.Validate(); err != nil {
		slog.Error("Invalid confidence thresholds", "error", err)
		os.Exit(1)
	}

	// Initialize catalog
	slog.Info("Initializing catalog database...", "path", *dbPath)
	store, err := catalog.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if *catalogPath != "" {
		if err := importFeed(store, *catalogPath); err != nil {
			slog.Error("Failed to import registry feed", "path", *catalogPath, "error", err)
			os.Exit(1)
		}
	}

	records, err := store.Load()
	if err != nil {
		slog.Error("Failed to load catalog", "error", err)
		os.Exit(1)
	}
	snapshot, err := catalog.NewSnapshot(records)
	if err != nil {
		slog.Error("Invalid catalog", "error", err)
		os.Exit(1)
	}
	if snapshot.Len() == 0 {
		slog.Warn("Catalog is empty; every lookup will report not_found. Import a feed with --catalog")
	}
	slog.Info("Catalog loaded", "products", snapshot.Len())

	// Initialize text engine based on type
	var engine scanning.TextEngine
	switch *recognizer {
	case "tesseract":
		slog.Info("Initializing Tesseract recognizer...", "language", *tessLang)
		engine, err = scanning.NewTesseract(*tessLang)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini recognizer...", "model", *geminiModel)
		engine, err = scanning.NewGemini(apiKey, *geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", *ollamaURL, "model", *ollamaModel)
		engine, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid recognizer type", "type", *recognizer, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize recognizer", "type", *recognizer, "error", err)
		os.Exit(1)
	}
	textReader := scanning.NewTextReader(engine)
	defer textReader.Close()

	// Initialize camera
	var camera verification.Camera
	if *cameraDir != "" {
		facing, err := imagesource.ParseFacing(*cameraFacing)
		if err != nil {
			slog.Error("Invalid camera facing", "error", err)
			os.Exit(1)
		}
		slog.Info("Initializing capture station...", "dir", *cameraDir, "facing", facing)
		camera = imagesource.NewManager(imagesource.NewDirectoryDevice(*cameraDir, facing))
	}

	orchestrator := verification.NewOrchestrator(
		lookup.New(snapshot),
		scanning.NewCodeReader(),
		textReader,
		camera,
		verification.Config{
			Policy:  policy,
			Workers: *workers,
			Upload:  imagesource.UploadPolicy{MaxBytes: int64(*maxUploadMB) << 20},
		},
	)

	// Initialize server
	basicAuth := verification.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := verification.NewServer(orchestrator, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// importFeed replaces the stored catalog with the feed at path
func importFeed(store catalog.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening feed: %w", err)
	}
	defer f.Close()

	records, err := catalog.LoadJSON(f)
	if err != nil {
		return err
	}
	// reject duplicates before touching the stored catalog
	if _, err := catalog.NewSnapshot(records); err != nil {
		return err
	}
	if err := store.Import(records); err != nil {
		return err
	}
	slog.Info("Imported registry feed", "path", path, "products", len(records))
	return nil
}
