package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/taxomap/internal/cli"
	"github.com/Veraticus/taxomap/internal/model"
	"github.com/Veraticus/taxomap/internal/taxonomy"
)

func searchCmd() *cobra.Command {
	var (
		within string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search the taxonomy by name",
		Long: `Search category names and full paths. Exact matches rank first, then name
prefixes, path suffixes, path segments and plain substrings. Ties prefer deeper
categories.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			idx, err := loadTaxonomy(cfg)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			var results []taxonomy.SearchResult
			if within != "" {
				if _, ok := idx.Category(within); !ok {
					return fmt.Errorf("unknown category %q", within)
				}
				results = idx.SearchWithinSubtree(within, query, limit)
			} else {
				results = idx.Search(query, limit)
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("No categories match %q", query)))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "%s\t%s\t%s\n",
				cli.BoldStyle.Render("SCORE"),
				cli.BoldStyle.Render("ID"),
				cli.BoldStyle.Render("FULL NAME"))
			for _, r := range results {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Score, model.BareID(r.Category.ID), r.Category.FullName)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&within, "within", "", "restrict the search to the subtree of this category id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results (0 for all)")

	return cmd
}
