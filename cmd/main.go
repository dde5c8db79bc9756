// Amazon Product Scraper - Educational Purpose Only
// This tool demonstrates browser automation and anti-detection patterns.
// Respect the target site's Terms of Service and robots.txt.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"amazon-scraper/internal/browser"
	"amazon-scraper/internal/config"
	"amazon-scraper/internal/detect"
	"amazon-scraper/internal/extract"
	"amazon-scraper/internal/models"
	"amazon-scraper/internal/scraper"
	"amazon-scraper/internal/stealth"
	"amazon-scraper/internal/storage"
)

// Version info
const (
	AppName    = "amazon-scraper"
	AppVersion = "1.0.0"
)

// Command line flags
var (
	configPath = flag.String("config", "./config/config.yaml", "Path to config file")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	headless   = flag.Bool("headless", false, "Run in headless mode")
	productURL = flag.String("url", "", "Product URL to scrape (overrides config)")
	seed       = flag.Int64("seed", 0, "Fingerprint seed (0 = derive from clock)")
)

// App holds all application dependencies
type App struct {
	config       *config.Config
	logger       zerolog.Logger
	db           *storage.Database
	runStore     *storage.RunStore
	productStore *storage.ProductStore
	reviewStore  *storage.ReviewStore
	cookieJar    *browser.CookieJar

	fingerprint *stealth.Fingerprint
	pool        *stealth.ProxyPool
	throttle    *stealth.Throttle
	detector    *detect.Detector
	interactor  *stealth.Interactor
	session     *scraper.ProtectedSession

	// chrome is the most recently launched browser, kept for cookie
	// persistence on shutdown
	chrome *browser.Chrome

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	flag.Parse()

	printBanner()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]

	app, err := NewApp()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer app.Cleanup()

	app.setupSignalHandler()

	var cmdErr error
	switch command {
	case "scrape":
		cmdErr = app.cmdScrape()
	case "extract":
		cmdErr = app.cmdExtract()
	case "run":
		cmdErr = app.cmdRun()
	case "status":
		cmdErr = app.cmdStatus()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if cmdErr != nil {
		app.logger.Error().Err(cmdErr).Msg("Command failed")
		os.Exit(1)
	}
}

// NewApp creates and initializes the application
func NewApp() (*App, error) {
	app := &App{}
	app.ctx, app.cancel = context.WithCancel(context.Background())

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.config = cfg

	// Override with command line flags
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *headless {
		cfg.Browser.Headless = true
	}
	if *productURL != "" {
		cfg.Target.ProductURL = *productURL
	}
	if *seed != 0 {
		cfg.Fingerprint.Seed = *seed
	}

	app.setupLogging()
	app.logger.Info().Str("version", AppVersion).Msg("Starting application")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db
	app.runStore = storage.NewRunStore(db)
	app.productStore = storage.NewProductStore(db)
	app.reviewStore = storage.NewReviewStore(db)

	app.cookieJar = browser.NewCookieJar(cfg.Storage.CookiesPath, app.logger)

	app.logger.Info().Msg("Application initialized")
	return app, nil
}

// initSession builds the protected browsing session (lazy, scrape only)
func (app *App) initSession() error {
	if app.session != nil {
		return nil
	}

	cfg := app.config

	app.fingerprint = stealth.NewFingerprint(cfg.Fingerprint.Seed)
	app.fingerprint.LogSummary(app.logger)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	pool, err := stealth.NewProxyPool(cfg.Proxies, rng, app.logger)
	if err != nil {
		return fmt.Errorf("failed to build proxy pool: %w", err)
	}
	app.pool = pool

	app.throttle = stealth.NewThrottle(
		time.Duration(cfg.Throttle.MinDelaySec*float64(time.Second)),
		time.Duration(cfg.Throttle.MaxDelaySec*float64(time.Second)),
		cfg.Throttle.BurstThreshold,
		rng, app.logger,
	)
	app.detector = detect.NewDetector(app.logger)
	app.interactor = stealth.NewInteractor(cfg.Scroll, rng, app.logger)

	factory := func(fp *stealth.Fingerprint, proxy *stealth.Proxy) (browser.Session, error) {
		extra := make(map[string]string, 4)
		for flag, value := range fp.ChromeFlags() {
			extra[flag] = value
		}
		if proxy != nil {
			extra["proxy-server"] = proxy.ChromeFlag()
			app.logger.Info().Str("proxy", proxy.Redacted()).Msg("Using proxy")
		}

		chrome, err := browser.Launch(browser.Options{
			Headless:        cfg.Browser.Headless,
			UserDataDir:     cfg.Browser.UserDataDir,
			BinaryPath:      cfg.Browser.BinaryPath,
			UserAgent:       fp.UserAgent,
			ExtraFlags:      extra,
			PageLoadTimeout: time.Duration(cfg.Session.PageLoadTimeoutSec) * time.Second,
		}, app.logger)
		if err != nil {
			return nil, err
		}

		if err := app.cookieJar.Load(chrome.Browser()); err != nil {
			app.logger.Warn().Err(err).Msg("Failed to load saved cookies")
		}

		app.chrome = chrome
		return chrome, nil
	}

	app.session = scraper.NewProtectedSession(
		factory, pool, app.throttle, app.detector,
		app.fingerprint,
		time.Duration(cfg.Session.CaptchaSolveTimeoutSec)*time.Second,
		cfg.Session.RotateFingerprintOnBlock,
		rng, app.logger,
	)
	return nil
}

// setupLogging configures the logger
func (app *App) setupLogging() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	level := zerolog.InfoLevel
	switch app.config.LogLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	app.logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
	log.Logger = app.logger
}

// setupSignalHandler handles graceful shutdown
func (app *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		app.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		app.cancel()
		app.Cleanup()
		os.Exit(0)
	}()
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	app.logger.Info().Msg("Cleaning up resources")

	if app.chrome != nil {
		if err := app.cookieJar.Save(app.chrome.Browser()); err != nil {
			app.logger.Warn().Err(err).Msg("Failed to save cookies")
		}
	}
	if app.session != nil {
		app.session.Close()
	}
	if app.db != nil {
		app.db.Close()
	}
}

// cmdScrape handles the scrape command
func (app *App) cmdScrape() error {
	app.logger.Info().Msg("=== Scrape Command ===")

	if err := app.config.ValidateForScrape(); err != nil {
		return err
	}
	if err := app.initSession(); err != nil {
		return err
	}

	writer, err := storage.NewPageWriter(app.config.Storage.OutputDir)
	if err != nil {
		return err
	}

	engine := scraper.NewEngine(
		app.session, app.interactor, writer,
		app.config.Target, app.config.Session.MaxRetries,
		app.config.Scroll, app.logger,
	)

	run := &models.ScrapeRun{
		ID:         uuid.NewString(),
		ProductURL: app.config.Target.ProductURL,
		StartedAt:  time.Now(),
	}

	result, err := engine.Run(app.ctx, app.config.Target.ProductURL)

	run.FinishedAt = time.Now()
	if result != nil {
		run.State = result.State
		run.Pages = result.Pages
		run.Bytes = result.Bytes
		run.Reason = result.Reason
		run.OutputFile = result.OutputFile
	}
	if saveErr := app.runStore.Save(run); saveErr != nil {
		app.logger.Warn().Err(saveErr).Msg("Failed to record run")
	}
	if err != nil {
		return fmt.Errorf("scrape failed: %w", err)
	}

	fmt.Printf("\nScrape %s:\n", result.State)
	fmt.Printf("  Run ID: %s\n", run.ID)
	fmt.Printf("  Pages:  %d\n", result.Pages)
	fmt.Printf("  Bytes:  %d\n", result.Bytes)
	fmt.Printf("  Output: %s\n", result.OutputFile)
	if result.Reason != "" {
		fmt.Printf("  Reason: %s\n", result.Reason)
	}
	return nil
}

// cmdExtract handles the extract command
func (app *App) cmdExtract() error {
	app.logger.Info().Msg("=== Extract Command ===")

	// Extract a named file, or fall back to the newest scrape
	path := ""
	if args := flag.Args(); len(args) > 1 {
		path = args[1]
	} else {
		newest, err := storage.NewestScrapeFile(app.config.Storage.OutputDir)
		if err != nil {
			return fmt.Errorf("no scrape file to extract (run 'scrape' first): %w", err)
		}
		path = newest
		app.logger.Info().Str("file", path).Msg("Using latest scrape file")
	}

	pipeline := extract.NewPipeline(app.productStore, app.reviewStore, app.logger)
	jsonPath, err := pipeline.Run(path, app.config.Storage.OutputDir, app.latestRunID())
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	fmt.Printf("\nExtraction complete: %s\n", jsonPath)
	return nil
}

// cmdRun handles the full scrape-then-extract cycle
func (app *App) cmdRun() error {
	app.logger.Info().Msg("=== Full Run ===")

	if err := app.cmdScrape(); err != nil {
		return err
	}
	if err := app.cmdExtract(); err != nil {
		return err
	}
	return app.cmdStatus()
}

// cmdStatus prints run history and record counts
func (app *App) cmdStatus() error {
	fmt.Println("\n========== Status ==========")

	runs, err := app.runStore.Recent(5)
	if err != nil {
		return err
	}
	fmt.Printf("\nRecent runs:\n")
	if len(runs) == 0 {
		fmt.Printf("  (none)\n")
	}
	for _, run := range runs {
		fmt.Printf("  %s  %-8s %3d pages  %s\n",
			run.StartedAt.Format("2006-01-02 15:04"), run.State, run.Pages, run.ProductURL)
	}

	totalRuns, _ := app.runStore.Count()
	products, _ := app.productStore.Count()
	reviews, _ := app.reviewStore.Count()

	fmt.Printf("\nRecords:\n")
	fmt.Printf("  Runs:     %d\n", totalRuns)
	fmt.Printf("  Products: %d\n", products)
	fmt.Printf("  Reviews:  %d\n", reviews)

	fmt.Println("\n============================")
	return nil
}

// latestRunID returns the most recent run's ID, or "" when none exists
func (app *App) latestRunID() string {
	runs, err := app.runStore.Recent(1)
	if err != nil || len(runs) == 0 {
		return ""
	}
	return runs[0].ID
}

// printBanner prints the application banner
func printBanner() {
	fmt.Print(`
╔═══════════════════════════════════════════════════════════════╗
║            Amazon Product Scraper - v` + AppVersion + `                    ║
║                                                               ║
║  ⚠️  EDUCATIONAL PURPOSE ONLY - SCRAPE RESPONSIBLY  ⚠️        ║
║                                                               ║
║  Aggressive scraping may violate the site's Terms of Service  ║
║  and will get your IP blocked. Keep the throttle settings.    ║
╚═══════════════════════════════════════════════════════════════╝

`)
}

// printUsage prints usage information
func printUsage() {
	fmt.Print(`
Usage: amazon-scraper [options] <command>

Commands:
  scrape    Scrape the product page and all review pages to a raw file
  extract   Parse the latest (or a named) scrape file into JSON + database
  run       Full cycle (scrape → extract → status)
  status    Show run history and record counts
  help      Show this help message

Options:
  -config string    Path to config file (default "./config/config.yaml")
  -log-level string Log level: debug, info, warn, error
  -headless         Run browser in headless mode
  -url string       Product URL to scrape (overrides config)
  -seed int         Fingerprint seed for reproducible identities

Examples:
  amazon-scraper -url https://www.amazon.in/dp/B0EXAMPLE1 scrape
  amazon-scraper extract
  amazon-scraper extract data/output/scrape_20260829_120000.txt
  amazon-scraper -log-level debug run

Configuration:
  1. Edit config/config.yaml (target URL, throttle, proxies)
  2. Optional .env overrides: PRODUCT_URL, HEADLESS, PROXY_LIST,
     DATABASE_PATH, OUTPUT_DIR, LOG_LEVEL, MAX_REVIEW_PAGES
  3. Run 'amazon-scraper scrape' then 'amazon-scraper extract'

For more information, see README.md

`)
}
