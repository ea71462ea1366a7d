package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/piiguard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage piiguard configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		renderConfig(cmd.OutOrStdout(), cfg, viper.ConfigFileUsed())
		return nil
	},
}

func renderConfig(w io.Writer, cfg *config.Config, file string) {
	if file == "" {
		file = "(none)"
	}
	orNone := func(s string) string {
		if s == "" {
			return "(none)"
		}
		return s
	}
	list := func(l []string) string {
		if len(l) == 0 {
			return "(all)"
		}
		return strings.Join(l, ", ")
	}
	fmt.Fprintf(w, "Config file:       %s\n", file)
	fmt.Fprintf(w, "Default language:  %s\n", cfg.DefaultLanguage)
	fmt.Fprintf(w, "Score threshold:   %s\n", formatScore(cfg.ScoreThreshold))
	fmt.Fprintf(w, "Recognizer file:   %s\n", orNone(cfg.RecognizerFile))
	fmt.Fprintf(w, "Operator file:     %s\n", orNone(cfg.OperatorFile))
	fmt.Fprintf(w, "Enabled entities:  %s\n", list(cfg.EnabledEntities))
	fmt.Fprintf(w, "Disabled entities: %s\n", orNone(strings.Join(cfg.DisabledEntities, ", ")))
	fmt.Fprintf(w, "Context:           boost %s, window %d/%d words\n",
		formatScore(cfg.Context.Boost), cfg.Context.WordsBefore, cfg.Context.WordsAfter)
	fmt.Fprintf(w, "NER backend:       %s\n", cfg.NERBackend)
	if cfg.NERBackend != config.NERBackendNone {
		fmt.Fprintf(w, "NER URL:           %s\n", orNone(cfg.NERURL))
		fmt.Fprintf(w, "NER model:         %s\n", orNone(cfg.NERModel))
		fmt.Fprintf(w, "NER API key:       %s\n", maskSecret(cfg.NERAPIKey))
		fmt.Fprintf(w, "NER timeout:       %s\n", cfg.NERTimeout)
		fmt.Fprintf(w, "NER policy:        %s\n", cfg.NERPolicy)
		fmt.Fprintf(w, "NER cache TTL:     %s\n", cfg.NERCacheTTL)
	}
	fmt.Fprintf(w, "Encryption key:    %s\n", maskSecret(cfg.EncryptionKey))
	fmt.Fprintf(w, "Listen address:    %s\n", cfg.ListenAddr)
	fmt.Fprintf(w, "CORS origins:      %s\n", orNone(strings.Join(cfg.CORSOrigins, ", ")))
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
