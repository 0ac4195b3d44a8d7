package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talentlens/reportflow/internal/model"
	"github.com/talentlens/reportflow/internal/pipeline"
)

var (
	analyzeMode        string
	analyzeOut         string
	analyzeSave        bool
	analyzeConcurrency int
)

// analyzeOutcome is the per-document envelope printed by the analyze
// command. RunID is set only with --save.
type analyzeOutcome struct {
	Document string                `json:"document"`
	RunID    string                `json:"run_id,omitempty"`
	Result   *model.PipelineResult `json:"result,omitempty"`
	Error    string                `json:"error,omitempty"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <document>...",
	Short: "Analyze one or more annual reports",
	Long:  "Resolves each document handle (local path, ftp:// URL, or raw text file), runs the staged extraction pipeline, and prints the analysis. With --save the run is persisted to the store.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := model.ExecutionMode(analyzeMode)
		if analyzeMode == "" {
			mode = model.ExecutionMode(cfg.Pipeline.Mode)
		}
		if !mode.Valid() {
			return eris.Errorf("analyze: unknown execution mode %q", mode)
		}
		if analyzeOut != "json" && analyzeOut != "text" {
			return eris.Errorf("analyze: unknown output format %q", analyzeOut)
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		outcomes, err := analyzeDocuments(ctx, env, args, mode, analyzeSave, analyzeConcurrency)
		if err != nil {
			return err
		}

		if analyzeOut == "text" {
			writeTextOutcomes(os.Stdout, outcomes)
		} else {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			for _, oc := range outcomes {
				if err := enc.Encode(oc); err != nil {
					return eris.Wrap(err, "analyze: encode result")
				}
			}
		}

		failed := 0
		for _, oc := range outcomes {
			if oc.Error != "" {
				failed++
			}
		}
		if failed > 0 {
			return eris.Errorf("analyze: %d of %d documents failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeMode, "mode", "", "execution mode: sequential or parallel (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "json", "output format: json or text")
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "persist the run to the store")
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 3, "max documents analyzed at once")
	rootCmd.AddCommand(analyzeCmd)
}

// analyzeDocuments fans the handles out over a bounded errgroup. Individual
// failures land in their outcome rather than aborting the batch; outcomes
// keep the input order.
func analyzeDocuments(ctx context.Context, env *analysisEnv, handles []string, mode model.ExecutionMode, save bool, concurrency int) ([]analyzeOutcome, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]analyzeOutcome, len(handles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, handle := range handles {
		g.Go(func() error {
			outcomes[i] = analyzeDocument(gctx, env, handle, mode, save)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analyze")
	}
	return outcomes, nil
}

// analyzeDocument runs one document through the pipeline. With save the
// run is persisted and driven through its status transitions; without, the
// result is only returned for display.
func analyzeDocument(ctx context.Context, env *analysisEnv, handle string, mode model.ExecutionMode, save bool) analyzeOutcome {
	oc := analyzeOutcome{Document: handle}

	if save {
		run, err := env.Store.CreateRun(ctx, handle, mode)
		if err != nil {
			oc.Error = err.Error()
			return oc
		}
		oc.RunID = run.ID
		executeRun(ctx, env, run)
		if run.Status != model.RunStatusCompleted {
			oc.Error = "analysis did not complete"
			if run.Error != nil {
				oc.Error = run.Error.Message
			}
			return oc
		}
		oc.Result = run.Result
		return oc
	}

	result, err := env.Pipeline.Run(ctx, handle, mode)
	if err != nil {
		zap.L().Error("analysis failed", zap.String("document", handle), zap.Error(err))
		oc.Error = err.Error()
		return oc
	}
	oc.Result = result
	return oc
}

// writeTextOutcomes prints the flattened report text per document, with a
// header line separating documents when more than one was analyzed.
func writeTextOutcomes(w io.Writer, outcomes []analyzeOutcome) {
	for i, oc := range outcomes {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if len(outcomes) > 1 {
			fmt.Fprintf(w, "== %s ==\n", oc.Document)
		}
		if oc.Error != "" {
			fmt.Fprintf(w, "analysis failed: %s\n", oc.Error)
			continue
		}
		fmt.Fprintln(w, pipeline.BuildAnalysisData(oc.Result, oc.Document).Text)
	}
}
