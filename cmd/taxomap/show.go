package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/taxomap/internal/cli"
	"github.com/Veraticus/taxomap/internal/model"
)

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <category-id>",
		Short: "Show a category with its ancestors and children",
		Long:  `Show one category. Both the bare id (el-1-2) and the global id form are accepted.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			idx, err := loadTaxonomy(cfg)
			if err != nil {
				return err
			}

			cat, ok := idx.Category(args[0])
			if !ok {
				return fmt.Errorf("unknown category %q", args[0])
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%s %s\n", cli.BoldStyle.Render("ID:       "), cat.BareID())
			fmt.Fprintf(&b, "%s %s\n", cli.BoldStyle.Render("Alias:    "), model.AliasID(cat.BareID()))
			fmt.Fprintf(&b, "%s %d\n", cli.BoldStyle.Render("Level:    "), cat.Level)
			fmt.Fprintf(&b, "%s %s\n", cli.BoldStyle.Render("Version:  "), idx.Version())

			if ancestors := idx.Ancestors(cat.ID); len(ancestors) > 0 {
				b.WriteString("\n" + cli.BoldStyle.Render("Ancestors") + "\n")
				for _, a := range ancestors {
					fmt.Fprintf(&b, "  %s  %s\n", cli.SubtleStyle.Render(a.BareID()), a.Name)
				}
			}

			children := idx.Children(cat.ID)
			if len(children) == 0 {
				b.WriteString("\n" + cli.SuccessStyle.Render("Leaf category") + "\n")
			} else {
				b.WriteString("\n" + cli.BoldStyle.Render(fmt.Sprintf("Children (%d)", len(children))) + "\n")
				for _, c := range children {
					marker := ""
					if len(idx.Children(c.ID)) == 0 {
						marker = cli.SubtleStyle.Render(" (leaf)")
					}
					fmt.Fprintf(&b, "  %s  %s%s\n", cli.SubtleStyle.Render(c.BareID()), c.Name, marker)
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cat.FullName, strings.TrimRight(b.String(), "\n")))
			return nil
		},
	}
}
