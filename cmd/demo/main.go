package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChuLiYu/conflict-engine/internal/dataset"
	"github.com/ChuLiYu/conflict-engine/internal/generator"
	"github.com/ChuLiYu/conflict-engine/internal/orchestrator"
	"github.com/ChuLiYu/conflict-engine/internal/report"
	"github.com/ChuLiYu/conflict-engine/internal/snapshot"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

const (
	checkpointDir = "data/demo-checkpoints"
	executionID   = "demo-portfolio"
	rounds        = 3
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/demo/main.go <start|recover>")
		os.Exit(1)
	}
	mode := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := buildEngine()
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}
	fmt.Printf("✓ Engine ready (mode: %s)\n", mode)

	switch mode {
	case "start":
		if err := runLearningLoop(ctx, engine); err != nil {
			log.Fatalf("Demo failed: %v", err)
		}
	case "recover":
		if err := showRecovered(ctx, engine); err != nil {
			log.Fatalf("Recovery failed: %v", err)
		}
	default:
		log.Fatalf("Unknown mode %q", mode)
	}
}

func buildEngine() (*orchestrator.Engine, error) {
	gen, err := generator.LoadFileGenerator("configs/solutions.yaml")
	if err != nil {
		return nil, err
	}
	checkpoints, err := snapshot.NewManager(checkpointDir)
	if err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Config{}, orchestrator.Deps{
		Source:      dataset.NewFileSource("configs/dataset.yaml"),
		Generator:   gen,
		Checkpoints: checkpoints,
	}), nil
}

// runLearningLoop analyzes the sample portfolio, then keeps rejecting the top
// solution so the ranking visibly shifts away from its strategy
func runLearningLoop(ctx context.Context, engine *orchestrator.Engine) error {
	rc, err := engine.Analyze(ctx, orchestrator.AnalysisRequest{
		ExecutionID: executionID,
		Query: types.Query{
			ProjectIDs: []string{"proj-tower", "proj-bridge"},
			StartDate:  types.MustParseDate("2025-03-01"),
			EndDate:    types.MustParseDate("2025-03-31"),
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n📊 Initial analysis:\n")
	if err := report.WriteSummary(os.Stdout, rc.Summary()); err != nil {
		return err
	}
	if len(rc.RankedSolutions) == 0 {
		fmt.Printf("\n⚠️  Nothing to rank, the portfolio has no conflicts\n")
		return nil
	}

	for round := 1; round <= rounds; round++ {
		top := rc.RankedSolutions[0]
		fmt.Printf("\n🔁 Round %d: manager rejects %s (%s)\n", round, top.ID, top.Strategy)

		res, err := engine.SubmitFeedback(ctx, executionID, orchestrator.FeedbackInput{
			SolutionID:    top.ID,
			Accepted:      false,
			ManagerRating: 1,
			Outcome:       types.OutcomeFailed,
		})
		if err != nil {
			return err
		}
		fmt.Printf("  weights %s\n", report.FormatWeights(res.Context.Weights))

		diff, err := report.DiffRankings(rc.RankedSolutions, res.Context.RankedSolutions)
		if err != nil {
			return err
		}
		if diff == "" {
			fmt.Printf("  ranking unchanged\n")
		} else {
			fmt.Print(diff)
		}
		rc = res.Context
	}

	fmt.Printf("\n💡 Run 'go run cmd/demo/main.go recover' to reload the run from %s\n", checkpointDir)
	return nil
}

func showRecovered(ctx context.Context, engine *orchestrator.Engine) error {
	n, err := engine.Recover(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n✓ Recovered %d run(s) from %s\n", n, checkpointDir)

	rc, err := engine.Result(ctx, executionID)
	if err != nil {
		return err
	}
	if err := report.WriteSummary(os.Stdout, rc.Summary()); err != nil {
		return err
	}
	fmt.Println()
	return report.WriteFeedback(os.Stdout, rc.FeedbackHistory)
}
