package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/taxomap/internal/cli"
	"github.com/Veraticus/taxomap/internal/model"
)

func mappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Inspect and curate the mapping cache",
		Long:  `Look up, set, count and audit cached mappings without calling the oracle.`,
	}

	cmd.AddCommand(getMappingCmd())
	cmd.AddCommand(setMappingCmd())
	cmd.AddCommand(mappingStatsCmd())
	cmd.AddCommand(staleMappingsCmd())

	return cmd
}

func getMappingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <input>",
		Short: "Show the cached mapping for an input",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rec, err := store.GetMapping(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get mapping: %w", err)
			}
			out := cmd.OutOrStdout()
			if rec == nil {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("No mapping cached for %q", args[0])))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Category\t%s\n", rec.CategoryID)
			fmt.Fprintf(tw, "Alias\t%s\n", rec.CategoryAlias)
			fmt.Fprintf(tw, "Full name\t%s\n", rec.FullName)
			fmt.Fprintf(tw, "Confidence\t%s\n", cli.FormatConfidence(rec.Confidence))
			fmt.Fprintf(tw, "Provenance\t%s\n", rec.Provenance)
			fmt.Fprintf(tw, "Taxonomy version\t%s\n", rec.TaxonomyVersion)
			fmt.Fprintf(tw, "Created\t%s\n", rec.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(tw, "Updated\t%s\n", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			return tw.Flush()
		},
	}
}

func setMappingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <input> <category-id>",
		Short: "Store a manually curated mapping",
		Long: `Store a mapping chosen by hand. Curated mappings carry low confidence and
manual provenance so they stay distinguishable from oracle results.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.mapper.SetManual(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%q → %s (%s)", args[0], res.FullName, res.CategoryID)))
			return nil
		},
	}
}

func mappingStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count cached mappings by confidence and provenance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.MappingStats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get mapping stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s %d cached mappings", cli.ChartIcon, stats.Total)))

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			for _, c := range []model.Confidence{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
				fmt.Fprintf(tw, "%s\t%d\n", cli.FormatConfidence(c), stats.ByConfidence[c])
			}
			fmt.Fprintln(tw)
			for _, p := range []model.Provenance{model.ProvenanceOracle, model.ProvenanceManual} {
				fmt.Fprintf(tw, "%s\t%d\n", p, stats.ByProvenance[p])
			}
			return tw.Flush()
		},
	}
}

func staleMappingsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List mappings made under another taxonomy version",
		Long: `List cached mappings whose taxonomy version differs from the loaded snapshot.
They are still served from the cache; re-map them with "taxomap map --remap".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer s.Close()

			stale, err := s.store.ListStaleMappings(ctx, s.index.Version(), limit)
			if err != nil {
				return fmt.Errorf("failed to list stale mappings: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(stale) == 0 {
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("All mappings match taxonomy version %s", s.index.Version())))
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				cli.BoldStyle.Render("INPUT"),
				cli.BoldStyle.Render("CATEGORY"),
				cli.BoldStyle.Render("VERSION"),
				cli.BoldStyle.Render("STILL VALID"))
			for _, rec := range stale {
				valid := cli.ErrorStyle.Render("no")
				if _, ok := s.index.Category(rec.CategoryID); ok {
					valid = cli.SuccessStyle.Render("yes")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", rec.Key, rec.CategoryID, rec.TaxonomyVersion, valid)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of mappings to list (0 for all)")
	return cmd
}
