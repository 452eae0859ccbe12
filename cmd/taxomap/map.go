package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/taxomap/internal/cli"
	"github.com/Veraticus/taxomap/internal/mapper"
)

var errInterrupted = errors.New("mapping interrupted")

func mapCmd() *cobra.Command {
	var (
		file        string
		concurrency int
		remap       bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "map [input...]",
		Short: "Map inputs onto taxonomy categories",
		Long: `Map each input onto one taxonomy category. Inputs already in the mapping
cache are answered from it; everything else is navigated turn by turn.

Inputs come from the arguments or, with --file, one per line ("-" reads stdin).
Keys are matched exactly: "Laptop" and "laptop " are different inputs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs := args
			if file != "" {
				fromFile, err := readInputs(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				inputs = append(inputs, fromFile...)
			}
			if len(inputs) == 0 {
				return errors.New("no inputs given: pass them as arguments or with --file")
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()

			inputs = mapper.Distinct(inputs)

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx = handler.HandleInterrupts(ctx, !remap)

			mapAll := s.mapper.MapAll
			if remap {
				mapAll = s.mapper.RemapAll
			}

			progress := cli.NewProgress(cmd.ErrOrStderr(), len(inputs), "Mapping inputs...")
			results := mapAll(ctx, inputs, concurrency, func(r mapper.BatchResult) {
				progress.Done(r.Err != nil)
			})
			progress.Finish()

			if err := printBatch(cmd.OutOrStdout(), results, asJSON); err != nil {
				return err
			}
			if handler.WasInterrupted() {
				return errInterrupted
			}
			if failed := progress.Failed(); failed > 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning(fmt.Sprintf("%d of %d inputs failed", failed, len(results))))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `read inputs from a file, one per line ("-" for stdin)`)
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "number of inputs navigated at once")
	cmd.Flags().BoolVar(&remap, "remap", false, "navigate again even if a mapping is cached")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per input")

	return cmd
}

func readInputs(stdin io.Reader, file string) ([]string, error) {
	r := stdin
	if file != "-" {
		f, err := os.Open(file) //nolint:gosec // user-supplied input file
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var inputs []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		inputs = append(inputs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read inputs: %w", err)
	}
	return inputs, nil
}

type jsonResult struct {
	Turns      *int   `json:"turns,omitempty"`
	Input      string `json:"input"`
	CategoryID string `json:"category_id,omitempty"`
	FullName   string `json:"full_name,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
	Error      string `json:"error,omitempty"`
	CacheHit   bool   `json:"cache_hit"`
}

func printBatch(w io.Writer, results []mapper.BatchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, r := range results {
			out := jsonResult{Input: r.Input}
			if r.Err != nil {
				out.Error = r.Err.Error()
			} else {
				out.CategoryID = r.Result.CategoryID
				out.FullName = r.Result.FullName
				out.Confidence = string(r.Result.Confidence)
				out.Reasoning = r.Result.Reasoning
				out.CacheHit = r.Result.CacheHit
				out.Turns = r.Result.Turns
			}
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
		cli.BoldStyle.Render("INPUT"),
		cli.BoldStyle.Render("CATEGORY"),
		cli.BoldStyle.Render("CONFIDENCE"),
		cli.BoldStyle.Render("SOURCE"),
		cli.BoldStyle.Render("FULL NAME"))
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t%s\t\t\t%s\n", r.Input, cli.ErrorStyle.Render(cli.ErrorIcon), cli.ErrorStyle.Render(r.Err.Error()))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Input,
			r.Result.CategoryID,
			cli.FormatConfidence(r.Result.Confidence),
			source(r.Result),
			r.Result.FullName)
	}
	return tw.Flush()
}

func source(r *mapper.MapResult) string {
	if r.CacheHit {
		return cli.SubtleStyle.Render(cli.CacheIcon + " cache")
	}
	if r.Turns == nil {
		return "manual"
	}
	return fmt.Sprintf("%d turns", *r.Turns)
}
