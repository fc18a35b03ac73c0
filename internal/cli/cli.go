// ============================================================================
// Conflict Engine CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Operator entry point built on Cobra
//
// Command Structure:
//   conflict-engine                  # Root command
//   ├── serve                        # gRPC service + /metrics
//   ├── serve-generator              # Solution catalog behind the generator RPC
//   ├── analyze                      # Run one analysis
//   ├── feedback                     # Submit feedback on a ranked solution
//   ├── status                       # Show the state of one execution id
//   ├── history                      # List runs, feedback and journal events
//   ├── batch                        # Run many analyses on the worker pool
//   ├── simulate                     # What-if scenario against the dataset
//   └── --config, -c                 # Config file (default configs/default.yaml)
//
// analyze, feedback and status run against the local store by default; with
// --server they call a running `serve` instance instead.
//
// Signal Handling:
//   serve and serve-generator stop gracefully on SIGINT / SIGTERM.
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/conflict-engine/internal/dataset"
	"github.com/ChuLiYu/conflict-engine/internal/generator"
	"github.com/ChuLiYu/conflict-engine/internal/metrics"
	"github.com/ChuLiYu/conflict-engine/internal/orchestrator"
	"github.com/ChuLiYu/conflict-engine/internal/report"
	"github.com/ChuLiYu/conflict-engine/internal/rpc"
	"github.com/ChuLiYu/conflict-engine/internal/server"
	"github.com/ChuLiYu/conflict-engine/internal/simulator"
	"github.com/ChuLiYu/conflict-engine/internal/worker"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

var configFile string

// BuildCLI assembles the root command
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conflict-engine",
		Short: "Conflict Engine: resource over-allocation analysis and ranking",
		Long: `Conflict Engine finds days where a person is booked beyond capacity
across projects, ranks candidate remediations and learns its ranking
weights from manager feedback.`,
		Version:      "1.0.0",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildServeGeneratorCommand())
	rootCmd.AddCommand(buildAnalyzeCommand())
	rootCmd.AddCommand(buildFeedbackCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildHistoryCommand())
	rootCmd.AddCommand(buildBatchCommand())
	rootCmd.AddCommand(buildSimulateCommand())

	return rootCmd
}

func setup() (*app, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(cfg)
}

func dialServer(addr string) (*rpc.ConflictEngineClient, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return rpc.NewConflictEngineClient(conn), conn.Close, nil
}

func parseQuery(projects []string, start, end string) (types.Query, error) {
	q := types.Query{ProjectIDs: projects}
	var err error
	if q.StartDate, err = types.ParseDate(start); err != nil {
		return q, fmt.Errorf("--start: %w", err)
	}
	if q.EndDate, err = types.ParseDate(end); err != nil {
		return q, fmt.Errorf("--end: %w", err)
	}
	return q, q.Validate()
}

// ============================================================================
// serve
// ============================================================================

func buildServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC service and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "gRPC port (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, port int) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recovered, err := a.engine.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover runs: %w", err)
	}
	log.Printf("Recovered %d run(s) from %s storage\n", recovered, a.cfg.Storage.Driver)

	if a.cfg.Metrics.Enabled {
		ms := metrics.NewServer(fmt.Sprintf(":%d", a.cfg.Metrics.Port), a.registry)
		go func() {
			log.Printf("Starting metrics server on %s\n", ms.Addr)
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Metrics server error: %v\n", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	grpcServer := server.NewGRPCServer(a.engine)
	return serveUntilDone(ctx, grpcServer, lis)
}

func serveUntilDone(ctx context.Context, s *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("gRPC server listening on %s\n", lis.Addr())
		errCh <- s.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("Received shutdown signal, stopping gracefully...")
		s.GracefulStop()
		return nil
	}
}

func buildServeGeneratorCommand() *cobra.Command {
	var port int
	var catalog string

	cmd := &cobra.Command{
		Use:   "serve-generator",
		Short: "Serve a solution catalog over the generator RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if catalog == "" {
				catalog = cfg.Generator.Catalog
			}
			gen, err := generator.LoadFileGenerator(catalog)
			if err != nil {
				return err
			}

			s := grpc.NewServer()
			rpc.RegisterSolutionGeneratorServer(s, generator.NewServer(gen))
			hs := health.NewServer()
			hs.SetServingStatus(rpc.SolutionGeneratorService, healthpb.HealthCheckResponse_SERVING)
			healthpb.RegisterHealthServer(s, hs)

			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return fmt.Errorf("failed to listen on port %d: %w", port, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveUntilDone(ctx, s, lis)
		},
	}
	cmd.Flags().IntVar(&port, "port", 50052, "gRPC port")
	cmd.Flags().StringVar(&catalog, "catalog", "", "solution catalog (overrides generator.catalog)")
	return cmd
}

// ============================================================================
// analyze
// ============================================================================

func buildAnalyzeCommand() *cobra.Command {
	var projects []string
	var start, end, id, serverAddr string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Detect conflicts and rank solutions for a project set",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(projects, start, end)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if serverAddr != "" {
				client, closeConn, err := dialServer(serverAddr)
				if err != nil {
					return err
				}
				defer closeConn()
				resp, err := client.Analyze(cmd.Context(), rpc.AnalyzeRequest{
					ExecutionID: id, ProjectIDs: q.ProjectIDs, StartDate: q.StartDate, EndDate: q.EndDate,
				})
				if err != nil {
					return err
				}
				return printAnalysis(out, resp.Summary, resp.Conflicts, resp.RankedSolutions, resp.Errors)
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			rc, runErr := a.engine.Analyze(cmd.Context(), orchestrator.AnalysisRequest{ExecutionID: id, Query: q})
			if runErr != nil && !errors.Is(runErr, orchestrator.ErrRunFailed) {
				return runErr
			}
			if err := printAnalysis(out, rc.Summary(), rc.Conflicts, rc.RankedSolutions, rc.Errors); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringSliceVarP(&projects, "projects", "p", nil, "project ids (comma separated)")
	cmd.Flags().StringVar(&start, "start", "", "first day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&id, "id", "", "execution id (generated when empty)")
	cmd.Flags().StringVar(&serverAddr, "server", "", "address of a running serve instance")
	cmd.MarkFlagRequired("projects")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func printAnalysis(w io.Writer, s types.Summary, conflicts []types.Conflict, ranked []types.RankedSolution, warnings []string) error {
	if err := report.WriteSummary(w, s); err != nil {
		return err
	}
	if len(conflicts) > 0 {
		fmt.Fprintln(w)
		if err := report.WriteConflicts(w, conflicts); err != nil {
			return err
		}
	}
	if len(ranked) > 0 {
		fmt.Fprintln(w)
		if err := report.WriteRanking(w, ranked); err != nil {
			return err
		}
	}
	if len(warnings) > 0 {
		fmt.Fprintln(w)
		for _, msg := range warnings {
			fmt.Fprintf(w, "warning: %s\n", msg)
		}
	}
	return nil
}

// ============================================================================
// feedback
// ============================================================================

func buildFeedbackCommand() *cobra.Command {
	var id, solution, outcome, serverAddr string
	var accepted bool
	var rating int
	var extra map[string]string

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Submit a manager verdict on a ranked solution",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			in := orchestrator.FeedbackInput{
				SolutionID:    solution,
				Accepted:      accepted,
				ManagerRating: rating,
				Outcome:       types.Outcome(outcome),
				Context:       extra,
			}

			if serverAddr != "" {
				client, closeConn, err := dialServer(serverAddr)
				if err != nil {
					return err
				}
				defer closeConn()
				resp, err := client.SubmitFeedback(cmd.Context(), rpc.FeedbackRequest{
					ExecutionID: id, SolutionID: in.SolutionID, Accepted: in.Accepted,
					ManagerRating: in.ManagerRating, Outcome: in.Outcome, Context: in.Context,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "effectiveness %.2f, re-analyzed: %t\n", resp.EffectivenessScore, resp.LoopedBack)
				fmt.Fprintf(out, "weights %s\n", report.FormatWeights(resp.Summary.Weights))
				return nil
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			before, err := a.engine.Result(cmd.Context(), id)
			if err != nil {
				return err
			}
			result, err := a.engine.SubmitFeedback(cmd.Context(), id, in)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "effectiveness %.2f, re-analyzed: %t\n", result.Feedback.EffectivenessScore, result.LoopedBack)
			fmt.Fprintf(out, "weights %s\n", report.FormatWeights(result.Context.Weights))

			diff, err := report.DiffRankings(before.RankedSolutions, result.Context.RankedSolutions)
			if err != nil {
				return err
			}
			if diff != "" {
				fmt.Fprintf(out, "\n%s", diff)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "execution id")
	cmd.Flags().StringVar(&solution, "solution", "", "ranked solution id")
	cmd.Flags().BoolVar(&accepted, "accepted", false, "whether the solution was adopted")
	cmd.Flags().IntVar(&rating, "rating", 0, "manager rating 1..5")
	cmd.Flags().StringVar(&outcome, "outcome", "", "success | partial | failed")
	cmd.Flags().StringToStringVar(&extra, "context", nil, "free-form key=value annotations")
	cmd.Flags().StringVar(&serverAddr, "server", "", "address of a running serve instance")
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("solution")
	cmd.MarkFlagRequired("rating")
	cmd.MarkFlagRequired("outcome")
	return cmd
}

// ============================================================================
// status / history
// ============================================================================

func buildStatusCommand() *cobra.Command {
	var id, serverAddr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of an execution",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if serverAddr != "" {
				client, closeConn, err := dialServer(serverAddr)
				if err != nil {
					return err
				}
				defer closeConn()
				resp, err := client.GetStatus(cmd.Context(), rpc.StatusRequest{ExecutionID: id})
				if err != nil {
					return err
				}
				return printStatus(out, resp.Status, resp.Summary, resp.LastError)
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := a.engine.Status(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printStatus(out, string(entry.Status), entry.Summary, entry.LastError)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "execution id")
	cmd.Flags().StringVar(&serverAddr, "server", "", "address of a running serve instance")
	cmd.MarkFlagRequired("id")
	return cmd
}

func printStatus(w io.Writer, status string, s types.Summary, lastError string) error {
	fmt.Fprintf(w, "status: %s\n", status)
	if lastError != "" {
		fmt.Fprintf(w, "last error: %s\n", lastError)
	}
	return report.WriteSummary(w, s)
}

func buildHistoryCommand() *cobra.Command {
	var id, stage string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored runs, or the feedback and journal of one run",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			if id == "" {
				return a.printRuns(cmd.Context(), cmd.OutOrStdout(), types.Stage(stage))
			}
			return a.printRunHistory(cmd.Context(), cmd.OutOrStdout(), id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "execution id")
	cmd.Flags().StringVar(&stage, "stage", "", "only runs whose last stage is this one")
	return cmd
}

func (a *app) printRuns(ctx context.Context, w io.Writer, stage types.Stage) error {
	var summaries []types.Summary
	var err error
	switch {
	case a.store != nil && stage != "":
		summaries, err = a.store.ListByStage(ctx, stage)
	default:
		summaries, err = a.engine.Runs(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%-38s %-24s %4s %9s %6s %8s\n", "EXECUTION", "STAGE", "ITER", "CONFLICTS", "RANKED", "FEEDBACK")
	for _, s := range summaries {
		if stage != "" && s.Stage != stage {
			continue
		}
		fmt.Fprintf(w, "%-38s %-24s %4d %9d %6d %8d\n",
			s.ExecutionID, s.Stage, s.Iterations, s.TotalConflicts, s.RankedSolutions, s.FeedbackCount)
	}
	return nil
}

func (a *app) printRunHistory(ctx context.Context, w io.Writer, id string) error {
	var history []types.Feedback
	if a.feedback != nil {
		records, err := a.feedback.Feedback(ctx, id)
		if err != nil {
			return err
		}
		history = records
	} else {
		rc, err := a.engine.Result(ctx, id)
		if err != nil {
			return err
		}
		history = rc.FeedbackHistory
	}
	if err := report.WriteFeedback(w, history); err != nil {
		return err
	}

	if a.journal == nil {
		return nil
	}
	events, err := a.journal.History(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	for _, ev := range events {
		fmt.Fprintf(w, "%6d %-10s %-16s %-24s iter=%d %s\n",
			ev.Seq, ev.Type, ev.State, ev.Stage, ev.Iteration, ev.Detail)
	}
	return nil
}

// ============================================================================
// batch
// ============================================================================

// batchRequest is one entry of a batch file
type batchRequest struct {
	ExecutionID string     `yaml:"execution_id"`
	ProjectIDs  []string   `yaml:"project_ids"`
	StartDate   types.Date `yaml:"start_date"`
	EndDate     types.Date `yaml:"end_date"`
}

func buildBatchCommand() *cobra.Command {
	var file string
	var workers int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the analyses listed in a YAML file concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := readBatchFile(file)
			if err != nil {
				return err
			}

			a, err := setup()
			if err != nil {
				return err
			}
			defer a.Close()

			opts := worker.BatchOptions{Workers: a.cfg.Worker.WorkerCount, TaskTimeout: a.cfg.Worker.TaskTimeout}
			if workers > 0 {
				opts.Workers = workers
			}
			if timeout > 0 {
				opts.TaskTimeout = timeout
			}

			log.Printf("Running %d analyses on %d workers\n", len(reqs), opts.Workers)
			results, err := worker.RunBatch(cmd.Context(), a.engine, reqs, opts)
			if err != nil {
				return err
			}
			return printBatch(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file listing the analyses")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count (overrides worker.worker_count)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-analysis timeout (overrides worker.task_timeout)")
	cmd.MarkFlagRequired("file")
	return cmd
}

func readBatchFile(path string) ([]orchestrator.AnalysisRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var entries []batchRequest
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse batch file: %w", err)
	}

	reqs := make([]orchestrator.AnalysisRequest, 0, len(entries))
	for _, e := range entries {
		reqs = append(reqs, orchestrator.AnalysisRequest{
			ExecutionID: e.ExecutionID,
			Query:       types.Query{ProjectIDs: e.ProjectIDs, StartDate: e.StartDate, EndDate: e.EndDate},
		})
	}
	return reqs, nil
}

func printBatch(w io.Writer, results []worker.Result) error {
	failed := 0
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(w, "%-38s ok      %-24s conflicts=%d ranked=%d (%s)\n",
				r.ExecutionID, r.Context.Stage, r.Context.TotalConflicts, len(r.Context.RankedSolutions),
				r.Duration.Round(time.Millisecond))
			continue
		}
		failed++
		fmt.Fprintf(w, "%-38s failed  %v\n", r.ExecutionID, r.Error)
	}
	fmt.Fprintf(w, "\n%d/%d analyses succeeded\n", len(results)-failed, len(results))
	return nil
}

// ============================================================================
// simulate
// ============================================================================

func buildSimulateCommand() *cobra.Command {
	var sc simulator.Scenario
	var kind string
	var projects []string
	var start, end string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Evaluate a what-if scenario against the dataset",
		Long: `Scenarios:
  add_resource        --role ROLE [--availability 0..1]
  delay_project       --project ID --days N
  prioritize_project  --project ID`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := parseQuery(projects, start, end)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ds, err := dataset.NewFileSource(cfg.Engine.Dataset).Read()
			if err != nil {
				return err
			}

			sc.Kind = simulator.Kind(kind)
			res, err := simulator.Simulate(ds, q, sc)
			if err != nil {
				return err
			}
			return report.WriteSimulation(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&kind, "scenario", "", "add_resource | delay_project | prioritize_project")
	cmd.Flags().StringVar(&sc.Role, "role", "", "role receiving extra capacity")
	cmd.Flags().Float64Var(&sc.Availability, "availability", 0, "availability of the extra resource (0..1)")
	cmd.Flags().StringVar(&sc.ProjectID, "project", "", "project to delay or prioritize")
	cmd.Flags().IntVar(&sc.Days, "days", 0, "delay in calendar days")
	cmd.Flags().StringSliceVarP(&projects, "projects", "p", nil, "project ids in scope (comma separated)")
	cmd.Flags().StringVar(&start, "start", "", "first day of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day of the window (YYYY-MM-DD)")
	cmd.MarkFlagRequired("scenario")
	cmd.MarkFlagRequired("projects")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}
