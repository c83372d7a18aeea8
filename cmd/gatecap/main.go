package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"gatecap/internal/config"
	"gatecap/internal/session"
)

var (
	// Global flags
	cfgPath       string
	flagCountry   string
	flagLang      string
	flagUA        string
	flagUAFull    string
	flagProxy     string
	flagEngine    string
	flagTimeout   int
	flagHeadful   bool
	flagWorkers   int
	flagPlain     bool
	flagOutputDir string
	flagVerbose   bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gatecap [url | url-file]",
	Short: "gatecap - capture gated web pages behind a spoofed browser fingerprint",
	Long: `gatecap drives a real Chromium browser through adversarial, cloaked or
geo-gated pages while projecting a coherent spoofed fingerprint:
user agent and client hints, language, geolocation, timezone, WebGL
and network class all agree with each other.

Every session archives the resources the page loaded, intercepted
downloads, request and response headers, cookies, a screenshot and a
DevTools transcript of the gating chain.

The argument is a single URL or a file with one URL per line.
Defanged forms (hxxp, [.], [:]) are normalized on read.`,
	Args: cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if flagVerbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runCapture,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagCountry, "country", "", "ISO 3166-1 alpha-2 country to impersonate")
	f.StringVar(&flagLang, "lang", "", "Accept-Language to project, e.g. de-DE")
	f.StringVar(&flagUA, "ua", "", "user agent catalog category, e.g. 'Windows;;Chrome'")
	f.StringVar(&flagUAFull, "ua-full", "", "literal user agent string, wins over --ua")
	f.StringVar(&flagProxy, "proxy", "", "proxy URL, socks5://host:port or http://host:port")
	f.StringVar(&flagEngine, "engine", "", "patch engine: auto, standard or stealth")
	f.IntVar(&flagTimeout, "timeout", 0, "per-URL deadline in seconds")
	f.BoolVar(&flagHeadful, "headful", false, "show the browser and wait for the tab to close")
	f.IntVar(&flagWorkers, "workers", 0, "concurrent captures in batch mode")
	f.BoolVar(&flagPlain, "plain-progress", false, "print plain n/m progress lines")
	f.StringVar(&flagOutputDir, "output-dir", "", "base directory for capture output")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "gatecap.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	// A headful session is interactive; without an explicit deadline
	// it gets the full dwell ceiling instead of the batch default.
	if cfg.Headful && !cmd.Flags().Changed("timeout") && os.Getenv("GATECAP_TIMEOUT") == "" {
		cfg.TimeoutSec = int((24 * time.Hour).Seconds())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	urls, err := readTargets(args[0])
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs to capture")
	}

	runID := time.Now().UTC().Format("20060102T150405Z") + "_" + uuid.NewString()[:8]
	logger.Info("run starting",
		zap.String("run_id", runID),
		zap.Int("urls", len(urls)),
		zap.Int("workers", cfg.Workers))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := session.NewRunner(cfg, logger, runID)
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	g.SetLimit(cfg.Workers)

	var done, failed atomic.Int64
	for _, target := range urls {
		target := target
		g.Go(func() error {
			if err := runner.Capture(gctx, target); err != nil {
				failed.Add(1)
			}
			if cfg.PlainProgress {
				fmt.Printf("%d/%d done\n", done.Add(1), len(urls))
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d captures failed to launch", n, len(urls))
	}
	return nil
}

// applyFlags layers explicitly set flags over the loaded config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("country") {
		cfg.Spoof.Country = flagCountry
	}
	if set("lang") {
		cfg.Spoof.Language = flagLang
	}
	if set("ua") {
		cfg.Spoof.UASelector = flagUA
	}
	if set("ua-full") {
		cfg.Spoof.UAFull = flagUAFull
	}
	if set("proxy") {
		cfg.Proxy = flagProxy
	}
	if set("engine") {
		cfg.Spoof.Engine = flagEngine
	}
	if set("timeout") {
		cfg.TimeoutSec = flagTimeout
	}
	if set("headful") {
		cfg.Headful = flagHeadful
	}
	if set("workers") {
		cfg.Workers = flagWorkers
	}
	if set("plain-progress") {
		cfg.PlainProgress = flagPlain
	}
	if set("output-dir") {
		cfg.OutputDir = flagOutputDir
	}
	if flagVerbose {
		cfg.Verbose = true
	}
}

// readTargets resolves the positional argument: an existing file is a
// batch of URLs, anything else is a single URL. Blank lines and #
// comments are skipped; every entry is deobfuscated.
func readTargets(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err != nil || info.IsDir() {
		if u := session.DeobfuscateURL(arg); u != "" {
			return []string{u}, nil
		}
		return nil, nil
	}

	f, err := os.Open(arg)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, session.DeobfuscateURL(line))
	}
	return urls, scanner.Err()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
