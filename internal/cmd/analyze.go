package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/piiguard/internal/engine"
)

// textFlags are shared by analyze and anonymize.
type textFlags struct {
	file      string
	language  string
	threshold float64
	entities  []string
	allowList []string
	jsonOut   bool
}

func (f *textFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "read text from file (- for stdin)")
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "language code (default: configured default_language)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", -1, "minimum score in [0,1] (default: configured score_threshold)")
	cmd.Flags().StringSliceVar(&f.entities, "entities", nil, "only report these entity types")
	cmd.Flags().StringSliceVar(&f.allowList, "allow", nil, "exact values never reported as PII")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "print the full JSON response")
}

func (f *textFlags) request(cmd *cobra.Command, args []string) (engine.AnalyzeRequest, error) {
	text, err := readText(cmd.InOrStdin(), f.file, args)
	if err != nil {
		return engine.AnalyzeRequest{}, err
	}
	req := engine.AnalyzeRequest{
		Text:      text,
		Language:  f.language,
		Entities:  f.entities,
		AllowList: f.allowList,
	}
	if cmd.Flags().Changed("threshold") {
		t := f.threshold
		req.ScoreThreshold = &t
	}
	return req, nil
}

// readText takes the text from args, a file, or stdin, in that order.
func readText(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case file == "-" || file == "":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimSuffix(string(data), "\n"), nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", file, err)
		}
		return string(data), nil
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var analyzeFlags textFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text]",
	Short: "Detect PII and print the entities found",
	Long:  "Detects PII in the text given as arguments, in --file, or on stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "analyze")
		defer span.End()

		req, err := analyzeFlags.request(cmd, args)
		if err != nil {
			return err
		}
		_, eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		resp, err := eng.Analyze(ctx, req)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		out := cmd.OutOrStdout()
		if analyzeFlags.jsonOut {
			return printJSON(out, resp)
		}
		renderEntities(out, resp)
		return nil
	},
}

func renderEntities(w io.Writer, resp *engine.AnalyzeResponse) {
	if resp.Degraded {
		fmt.Fprintf(w, "⚠ NER unavailable; results are pattern-only\n")
	}
	if resp.Count == 0 {
		fmt.Fprintln(w, "No PII found.")
		return
	}
	fmt.Fprintf(w, "%-16s %6s %6s %6s  %-24s %s\n", "Entity", "Start", "End", "Score", "Recognizer", "Text")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, e := range resp.Entities {
		fmt.Fprintf(w, "%-16s %6d %6d %6s  %-24s %s\n", e.EntityType, e.Start, e.End, formatScore(e.Score), e.Recognizer, e.Text)
	}
	fmt.Fprintf(w, "\n%d entities\n", resp.Count)
}

func init() {
	analyzeFlags.register(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}
