package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/piiguard/internal/engine"
)

var entitiesJSON bool

var entitiesCmd = &cobra.Command{
	Use:   "entities [language]",
	Short: "List detectable entity types with their recognizers and operators",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "entities")
		defer span.End()

		_, eng, err := newEngine()
		if err != nil {
			return err
		}
		defer eng.Close()

		language := ""
		if len(args) == 1 {
			language = args[0]
		}
		list := eng.Entities(language)
		out := cmd.OutOrStdout()
		if entitiesJSON {
			return printJSON(out, list)
		}
		renderEntityConfigs(out, list)
		return nil
	},
}

func renderEntityConfigs(w io.Writer, list []engine.EntityConfig) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No entities registered.")
		return
	}
	fmt.Fprintf(w, "%-16s %-28s %s\n", "Entity", "Operator", "Recognizers")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, e := range list {
		fmt.Fprintf(w, "%-16s %-28s %s\n", e.EntityType, formatOperator(e.Operator), strings.Join(e.Recognizers, ", "))
	}
}

func init() {
	entitiesCmd.Flags().BoolVar(&entitiesJSON, "json", false, "print JSON")
	rootCmd.AddCommand(entitiesCmd)
}
