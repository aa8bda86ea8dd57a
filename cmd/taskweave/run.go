package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/executor"
	"github.com/taskweave/taskweave/internal/orchestrator"
	"github.com/taskweave/taskweave/internal/state"
	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/internal/workflow"
	"github.com/taskweave/taskweave/pkg/models"
)

var (
	runObjectives []string
	runData       string
	runWorkers    int
	runNoPersist  bool
)

var runCmd = &cobra.Command{
	Use:   "run <plan name>",
	Short: "Build, approve, and execute a plan",
	Long: `Run a full plan lifecycle with the built-in demo team and the
simulated executor.

Objectives are expanded into a dependency-ordered task graph, submitted
for manager approval, executed on the worker pool, and routed through the
quality gate and peer review. The final executive report is printed when
every task is approved.

Peer review requests raised during the run are approved automatically by
the routed senior reviewer, so a clean run completes end to end. Gate
failures park the task and are reported instead.

State is persisted to .taskweave/state.db in the current directory unless
--no-persist is given. Use 'taskweave status' to inspect it afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runObjectives, "objective", "o", nil, "Business objective (repeatable)")
	runCmd.Flags().StringVar(&runData, "data", "dataset", "Handle of the dataset to analyze")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Worker count override (default from config)")
	runCmd.Flags().BoolVar(&runNoPersist, "no-persist", false, "Skip state persistence")
	runCmd.MarkFlagRequired("objective")
}

// demoTeam seeds the in-memory store with a small team covering every
// analysis skill the rule-based planner can require.
func demoTeam(s *store.Store) error {
	team := []*models.User{
		{ID: "u-morgan", Name: "Morgan", Role: models.RoleManager, MaxWorkload: 5},
		{ID: "u-sasha", Name: "Sasha", Role: models.RoleSeniorAnalyst, MaxWorkload: 3,
			Skills: []string{"statistics", "machine_learning", "time_series"}},
		{ID: "u-river", Name: "River", Role: models.RoleSeniorAnalyst, MaxWorkload: 3,
			Skills: []string{"statistics", "machine_learning", "sql"}},
		{ID: "u-devon", Name: "Devon", Role: models.RoleAnalyst, MaxWorkload: 3,
			Skills: []string{"sql", "data_quality", "statistics"}},
		{ID: "u-quinn", Name: "Quinn", Role: models.RoleAnalyst, MaxWorkload: 3,
			Skills: []string{"visualization", "sql"}},
	}
	for _, u := range team {
		if _, err := s.AddUser(u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Name, err)
		}
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	planName := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runWorkers > 0 {
		cfg.Workers.Count = runWorkers
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	s := store.New()
	if err := demoTeam(s); err != nil {
		return err
	}

	opts := []orchestrator.Option{orchestrator.WithConfig(cfg)}
	if cfg.Logging.Debug {
		var logger *orchestrator.DebugLogger
		if cfg.Logging.Path != "" {
			logger, err = orchestrator.NewDebugLogger(cfg.Logging.Path)
			if err != nil {
				return fmt.Errorf("open debug log: %w", err)
			}
		} else {
			logger = orchestrator.NewDebugLoggerForDir(cwd)
		}
		defer logger.Close()
		opts = append(opts, orchestrator.WithLogger(logger))
	}
	if !runNoPersist {
		db, err := state.OpenProject(cwd)
		if err != nil {
			return fmt.Errorf("open state database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate state database: %w", err)
		}
		opts = append(opts, orchestrator.WithStateDB(db))
	}

	coord := orchestrator.New(orchestrator.RequiredConfig{
		Store:    s,
		Executor: executor.NewSimulated(),
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for e := range coord.Events() {
			printEvent(e)
		}
	}()

	plan, err := coord.CreatePlan(ctx, "u-morgan", planName, runObjectives, runData)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	fmt.Printf("\nPlan %s (%s) with %d tasks\n", color.CyanString(plan.ID), plan.Name, len(s.TasksForPlan(plan.ID)))

	req := s.PendingApprovalForSubject(models.ApprovalKindPlan, plan.ID)
	if req == nil {
		return fmt.Errorf("plan %s has no pending approval request", plan.ID)
	}
	if err := coord.DecidePlan(req.ID, "u-morgan", workflow.DecisionApprove, "approved via CLI"); err != nil {
		return fmt.Errorf("approve plan: %w", err)
	}

	if err := coord.ExecutePlan(ctx, plan.ID); err != nil {
		return fmt.Errorf("execute plan: %w", err)
	}

	// Work the peer review queue until it drains. Each approval can complete
	// the plan; a revision would need another execution pass, which the
	// simulated executor never triggers on approve.
	for _, pending := range coord.Workflow().Queue(models.RoleSeniorAnalyst) {
		if pending.Kind != models.ApprovalKindPeerReview {
			continue
		}
		fmt.Printf("%s peer review %s approved by %s\n",
			color.YellowString("⚖"), pending.ID, pending.Reviewer)
		if err := coord.DecidePeerReview(pending.ID, pending.Reviewer, workflow.DecisionApprove, "reviewed via CLI"); err != nil {
			return fmt.Errorf("approve peer review %s: %w", pending.ID, err)
		}
	}

	printPlanOutcome(s, coord, plan)

	cancel()
	// Drain remaining events before the emitter goes quiet.
	coord.CloseEvents()
	<-eventsDone
	return nil
}

func printEvent(e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventTaskAssigned:
		fmt.Printf("%s %s\n", color.BlueString("→"), e.Message)
	case orchestrator.EventTaskCompleted, orchestrator.EventTaskApproved:
		fmt.Printf("%s %s\n", color.GreenString("✓"), e.Message)
	case orchestrator.EventTaskFailed, orchestrator.EventGateFailed:
		fmt.Printf("%s %s\n", color.RedString("✗"), e.Message)
	case orchestrator.EventPeerReviewRequested, orchestrator.EventPlanStalled:
		fmt.Printf("%s %s\n", color.YellowString("⚠"), e.Message)
	case orchestrator.EventPlanCompleted, orchestrator.EventReportReady:
		fmt.Printf("%s %s\n", color.GreenString("●"), e.Message)
	}
}

func printPlanOutcome(s *store.Store, coord *orchestrator.Coordinator, plan *models.Plan) {
	fmt.Println()
	switch plan.Status {
	case models.PlanStatusCompleted:
		fmt.Printf("%s Plan %s completed\n", color.GreenString("✓"), plan.Name)
	default:
		fmt.Printf("%s Plan %s is %s\n", color.YellowString("⚠"), plan.Name, plan.Status)
		for _, task := range s.TasksForPlan(plan.ID) {
			if len(task.GateIssues) > 0 {
				fmt.Printf("  %s %s: %s\n", color.RedString("✗"), task.Name, strings.Join(task.GateIssues, "; "))
			}
		}
		return
	}

	rpt := coord.Report(plan.ID)
	if rpt == nil {
		return
	}
	fmt.Printf("\nExecutive Report: %s\n", rpt.PlanName)
	fmt.Printf("  Tasks: %d  Confidence: %.2f  Quality: %.2f\n", rpt.TaskCount, rpt.ConfidenceScore, rpt.QualityScore)
	fmt.Println("  Key insights:")
	for _, insight := range rpt.KeyInsights {
		fmt.Printf("    - %s\n", insight)
	}
	fmt.Println("  Recommendations:")
	for _, rec := range rpt.Recommendations {
		fmt.Printf("    - %s\n", rec)
	}

	if req := s.PendingApprovalForSubject(models.ApprovalKindFinalReport, plan.ID); req != nil {
		fmt.Printf("\nFinal report pending manager approval (request %s)\n", color.CyanString(req.ID))
	}
}
