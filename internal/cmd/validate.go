package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/piiguard/internal/anonymizer"
	"github.com/dativo-io/piiguard/internal/classifier"
	"github.com/dativo-io/piiguard/internal/config"
	"github.com/dativo-io/piiguard/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate recognizer and operator files",
	Long: `Validates the recognizer and operator YAML files (from --recognizers,
--operators or the config file) against their schemas, compiles every
pattern and operator, and builds the engine without contacting NER.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "validate")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		out := cmd.OutOrStdout()

		if err := validateRecognizerFile(out, cfg.RecognizerFile); err != nil {
			return err
		}
		if err := validateOperatorFile(out, cfg.OperatorFile); err != nil {
			return err
		}

		// NER is not needed to check that recognizers and operators fit together.
		offline := *cfg
		offline.NERBackend = config.NERBackendNone
		eng, err := engine.New(&offline)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ Engine build failed\n")
			return fmt.Errorf("validation failed: %w", err)
		}
		defer eng.Close()

		log.Info().
			Str("recognizers", cfg.RecognizerFile).
			Str("operators", cfg.OperatorFile).
			Int("entities", len(eng.SupportedEntities(""))).
			Msg("configuration validated")
		fmt.Fprintf(out, "✓ Engine: %d entity types, languages %v\n", len(eng.SupportedEntities("")), eng.Registry().Languages())
		return nil
	},
}

func validateRecognizerFile(out io.Writer, path string) error {
	if path == "" {
		fmt.Fprintln(out, "- Recognizers: embedded defaults only")
		return nil
	}
	rf, err := classifier.LoadRecognizerFile(path)
	if err == nil && rf == nil {
		err = fmt.Errorf("%w: %s not found", classifier.ErrConfiguration, path)
	}
	if err == nil {
		_, err = classifier.BuildRecognizers(rf.Recognizers)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Validation failed: %s\n", path)
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Fprintf(out, "✓ Recognizers valid: %s (%d)\n", path, len(rf.Recognizers))
	return nil
}

func validateOperatorFile(out io.Writer, path string) error {
	if path == "" {
		fmt.Fprintln(out, "- Operators: defaults only (replace with <ENTITY>)")
		return nil
	}
	f, err := anonymizer.LoadOperatorFile(path)
	if err == nil && f == nil {
		err = fmt.Errorf("%w: %s not found", classifier.ErrConfiguration, path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ Validation failed: %s\n", path)
		return fmt.Errorf("validation failed: %w", err)
	}
	fmt.Fprintf(out, "✓ Operators valid: %s (%d)\n", path, len(f.Operators))
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
