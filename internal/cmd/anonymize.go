package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dativo-io/piiguard/internal/engine"
)

var (
	anonymizeFlags    textFlags
	anonymizeManifest string
	deanonymizeFile   string
)

var anonymizeCmd = &cobra.Command{
	Use:   "anonymize [text]",
	Short: "Replace PII using the configured operators",
	Long: `Detects PII and rewrites it with the configured per-entity operators.
Prints the anonymized text; --json prints the text with its manifest and
--manifest writes the manifest to a file for 'piiguard deanonymize'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "anonymize")
		defer span.End()

		req, err := anonymizeFlags.request(cmd, args)
		if err != nil {
			return err
		}
		_, eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		resp, err := eng.Anonymize(ctx, req)
		if err != nil {
			return fmt.Errorf("anonymize: %w", err)
		}
		if anonymizeManifest != "" {
			if err := writeManifest(anonymizeManifest, resp); err != nil {
				return err
			}
		}
		out := cmd.OutOrStdout()
		if anonymizeFlags.jsonOut {
			return printJSON(out, resp)
		}
		fmt.Fprintln(out, resp.Text)
		return nil
	},
}

func writeManifest(path string, resp *engine.AnonymizeResponse) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	defer f.Close()
	return printJSON(f, resp)
}

var deanonymizeCmd = &cobra.Command{
	Use:   "deanonymize",
	Short: "Restore encrypted values from an anonymize manifest",
	Long: `Reads the JSON written by 'piiguard anonymize --json' or --manifest
(from --file or stdin) and decrypts every item produced by the encrypt
operator. Requires the same encryption_key used to anonymize.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "deanonymize")
		defer span.End()

		req, err := readDeanonymizeRequest(cmd.InOrStdin(), deanonymizeFile)
		if err != nil {
			return err
		}
		_, eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		resp, err := eng.Deanonymize(ctx, req)
		if err != nil {
			return fmt.Errorf("deanonymize: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
		return nil
	},
}

func readDeanonymizeRequest(stdin io.Reader, file string) (engine.DeanonymizeRequest, error) {
	var req engine.DeanonymizeRequest
	r := stdin
	if file != "" && file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return req, fmt.Errorf("reading manifest: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, fmt.Errorf("decoding manifest: %w", err)
	}
	return req, nil
}

func init() {
	anonymizeFlags.register(anonymizeCmd)
	anonymizeCmd.Flags().StringVar(&anonymizeManifest, "manifest", "", "write the JSON manifest to this file")
	deanonymizeCmd.Flags().StringVarP(&deanonymizeFile, "file", "f", "", "manifest JSON (default: stdin)")
	rootCmd.AddCommand(anonymizeCmd, deanonymizeCmd)
}
