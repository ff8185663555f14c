package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"codebot/internal/patterns"
)

var (
	patternsExt  string
	patternsJSON bool
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the code and secret detection patterns",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		list := patterns.All()
		if patternsExt != "" {
			list = patterns.For(patternsExt)
		}

		if patternsJSON {
			type entry struct {
				ID         string   `json:"id"`
				Title      string   `json:"title"`
				Severity   string   `json:"severity"`
				Confidence string   `json:"confidence"`
				Category   string   `json:"vulnerability_type"`
				Extensions []string `json:"extensions,omitempty"`
			}
			out := make([]entry, 0, len(list))
			for _, p := range list {
				out = append(out, entry{p.ID, p.Title, p.Severity.String(), p.Confidence.String(), string(p.Category), p.Extensions})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSEVERITY\tCONFIDENCE\tCATEGORY\tTITLE")
		for _, p := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Severity, p.Confidence, p.Category, p.Title)
		}
		w.Flush()
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d patterns\n", len(list))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.Flags().StringVar(&patternsExt, "ext", "", "Only patterns that apply to this file extension (e.g. .py)")
	patternsCmd.Flags().BoolVar(&patternsJSON, "json", false, "Output as JSON")
}
