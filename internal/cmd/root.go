package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/piiguard/internal/config"
	"github.com/dativo-io/piiguard/internal/engine"
	"github.com/dativo-io/piiguard/internal/otel"
)

// resolvedVersion returns Version unless it is "dev" and Go build info
// contains a real module version (e.g. from go install ...@v0.8.5).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// tracer is the package-level tracer for all CLI commands
var tracer = otel.Tracer("github.com/dativo-io/piiguard/internal/cmd")

var (
	// otelShutdown holds the OTel shutdown function, called from Execute()
	otelShutdown func(context.Context) error

	// Version info injected via ldflags at build time
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "piiguard",
	Short: "PII detection and anonymization engine",
	Long: `piiguard finds personal data in text and rewrites it.

Detection combines:
- Pattern recognizers with checksum validation (cards, IBAN, Aadhaar, PAN, SSN)
- Context words that raise confidence (e.g. "pay" near a UPI handle)
- An optional NER backend (HTTP sidecar or OpenAI-compatible LLM)

Anonymization applies per-entity operators (replace, redact, mask, hash,
encrypt, keep) and returns a manifest with offsets into both texts.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		setupLogging()

		// Initialize OpenTelemetry when --otel, -v, or PIIGUARD_OTEL_ENABLED=true
		otelEnabled := otelFlag || verbose || os.Getenv("PIIGUARD_OTEL_ENABLED") == "true"
		shutdown, err := otel.Setup("piiguard", resolvedVersion(), otelEnabled)
		if err != nil {
			return fmt.Errorf("initializing OpenTelemetry: %w", err)
		}

		// Store shutdown for call on exit from Execute()
		otelShutdown = shutdown

		return nil
	},
}

func setupLogging() {
	// Parse log level
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// All structured logs go to stderr so stdout stays clean for piping (e.g. piiguard anonymize | jq).
	if logFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Logger()
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./piiguard.config.yaml or ~/.piiguard/piiguard.config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics to stdout)")
	rootCmd.PersistentFlags().String("recognizers", "", "recognizer YAML merged over the embedded defaults")
	rootCmd.PersistentFlags().String("operators", "", "operator YAML with per-entity overrides")
	rootCmd.PersistentFlags().String("ner-backend", "", "NER backend (none, sidecar, llm)")
	rootCmd.PersistentFlags().String("ner-url", "", "NER sidecar or OpenAI-compatible base URL")

	// Bind to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("otel", rootCmd.PersistentFlags().Lookup("otel"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag(config.KeyRecognizerFile, rootCmd.PersistentFlags().Lookup("recognizers"))
	_ = viper.BindPFlag(config.KeyOperatorFile, rootCmd.PersistentFlags().Lookup("operators"))
	_ = viper.BindPFlag(config.KeyNERBackend, rootCmd.PersistentFlags().Lookup("ner-backend"))
	_ = viper.BindPFlag(config.KeyNERURL, rootCmd.PersistentFlags().Lookup("ner-url"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search in ~/.piiguard/ and current directory
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.piiguard")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("piiguard.config")
		viper.SetConfigType("yaml")
	}

	// Read config (ignore errors - file may not exist yet)
	_ = viper.ReadInConfig()
}

// newEngine loads configuration and builds the engine used by most commands.
func newEngine() (*config.Config, *engine.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("building engine: %w", err)
	}
	return cfg, eng, nil
}

// Execute runs the root command and flushes OTel on exit
func Execute() error {
	err := rootCmd.Execute()
	if otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(ctx)
	}
	return err
}
