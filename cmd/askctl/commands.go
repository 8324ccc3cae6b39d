package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"answer-router/internal/app"
	"answer-router/internal/classify"
	"answer-router/internal/engine"
	"answer-router/internal/logger"
	"answer-router/internal/provider"
	"answer-router/internal/scoring"
)

// env builds the collaborators commands need; tests swap it for in-memory ones.
type env struct {
	newEngine func(ctx context.Context, verbose bool) (*engine.Engine, func() error, error)
	newScorer func() (*scoring.Scorer, error)
}

func defaultEnv() env {
	return env{
		newEngine: func(ctx context.Context, verbose bool) (*engine.Engine, func() error, error) {
			cfg, err := app.LoadConfig()
			if err != nil {
				return nil, nil, err
			}
			level := "warn"
			if verbose {
				level = "debug"
			}
			deps, err := app.BuildWith(ctx, cfg, logger.NewWithWriter(os.Stderr, level, "text"))
			if err != nil {
				return nil, nil, err
			}
			return deps.Engine, deps.Close, nil
		},
		newScorer: func() (*scoring.Scorer, error) {
			cfg, err := app.LoadConfig()
			if err != nil {
				return nil, err
			}
			return app.BuildScorer(cfg)
		},
	}
}

func newRootCmd(e env) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "askctl",
		Short:         "Ask several AI providers and keep the best answer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log provider activity to stderr")

	root.AddCommand(
		newAskCmd(e, &verbose),
		newClassifyCmd(),
		newScoreCmd(e),
	)
	return root
}

func newAskCmd(e env, verbose *bool) *cobra.Command {
	var (
		streamOut bool
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Query every configured provider and print the selected answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if streamOut && jsonOut {
				return fmt.Errorf("--stream and --json are mutually exclusive")
			}
			question := strings.Join(args, " ")

			eng, closeFn, err := e.newEngine(cmd.Context(), *verbose)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if streamOut {
				return streamAnswer(cmd.Context(), out, eng, question)
			}

			rec := eng.Decide(cmd.Context(), question)
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"answer":      rec.Winner.Result.Text,
					"source":      rec.Winner.Result.Source,
					"confidence":  rec.Winner.Result.Confidence,
					"all_sources": rec.AllSources(),
					"category":    rec.Category,
				})
			}
			fmt.Fprintln(out, rec.Winner.Result.Text)
			fmt.Fprintf(out, "\nsource: %s  confidence: %.2f  category: %s\n",
				rec.Winner.Result.Source, rec.Winner.Result.Confidence, rec.Category)
			return nil
		},
	}
	cmd.Flags().BoolVar(&streamOut, "stream", false, "print the answer word by word")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the answer as JSON")
	return cmd
}

func streamAnswer(ctx context.Context, out io.Writer, eng *engine.Engine, question string) error {
	_, events := eng.Stream(ctx, question)
	for ev := range events {
		if !ev.Finished {
			fmt.Fprint(out, ev.Token)
			continue
		}
		fmt.Fprintln(out)
		conf := 0.0
		if ev.Confidence != nil {
			conf = *ev.Confidence
		}
		fmt.Fprintf(out, "\nsource: %s  confidence: %.2f\n", ev.Source, conf)
		if ev.Error != "" {
			return errors.New(ev.Error)
		}
	}
	return ctx.Err()
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <question>",
		Short: "Print the category a question is routed under",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), classify.Classify(strings.Join(args, " ")))
			return nil
		},
	}
}

func newScoreCmd(e env) *cobra.Command {
	var (
		category string
		question string
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a JSON array of provider results read from stdin",
		Long: `Read a JSON array of results, e.g.

  [{"source": "openai", "text": "...", "confidence": 0.95}]

and print each result's score breakdown, marking the one that would be selected.
The category comes from --category, or is derived from --question.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := scoreCategory(category, question)
			if err != nil {
				return err
			}
			var results []provider.Result
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&results); err != nil {
				return fmt.Errorf("decode results: %w", err)
			}
			scorer, err := e.newScorer()
			if err != nil {
				return err
			}
			writeScores(cmd.OutOrStdout(), scorer, results, cat)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category to score under")
	cmd.Flags().StringVar(&question, "question", "", "derive the category from this question")
	return cmd
}

func scoreCategory(category, question string) (classify.Category, error) {
	switch {
	case category != "" && question != "":
		return "", fmt.Errorf("--category and --question are mutually exclusive")
	case category != "":
		c, ok := classify.Parse(category)
		if !ok {
			return "", fmt.Errorf("unknown category %q", category)
		}
		return c, nil
	case question != "":
		return classify.Classify(question), nil
	default:
		return classify.General, nil
	}
}

func writeScores(out io.Writer, scorer *scoring.Scorer, results []provider.Result, cat classify.Category) {
	winner := scorer.Select(results, cat)
	winnerIdx := -1
	if !winner.IsFallback() {
		for i, r := range results {
			if r.Source == winner.Result.Source && r.Text == winner.Result.Text {
				winnerIdx = i
				break
			}
		}
	}

	fmt.Fprintf(out, "category: %s\n\n", cat)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tSOURCE\tCONFIDENCE\tLENGTH\tBONUS\tSCORE")
	for i, sc := range scorer.Rank(results, cat) {
		mark := ""
		if i == winnerIdx {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%.3f\t%.3f\n",
			mark, sc.Result.Source, sc.Result.Confidence, sc.LengthBonus, sc.CategoryBonus, sc.Score)
	}
	tw.Flush()

	if winner.IsFallback() {
		fmt.Fprintf(out, "\nno usable result; the router would answer with the %q fallback\n", scoring.FallbackSource)
	}
}
