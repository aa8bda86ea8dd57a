package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/state"
	"github.com/taskweave/taskweave/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [plan id]",
	Short: "Show persisted plan state",
	Long: `Display plans persisted by previous runs.

Without arguments, lists every stored plan with its status and task count.
With a plan id, shows the plan's tasks, their assignees and statuses, and
the executive report if one was generated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// Try the project database first, then global.
	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = state.GlobalDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No stored state. Run 'taskweave run' to execute a plan.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if len(args) == 1 {
		return displayPlan(db, args[0])
	}
	return displayAllPlans(db)
}

func displayAllPlans(db *state.DB) error {
	plans, err := db.ListPlans(nil)
	if err != nil {
		return fmt.Errorf("list plans: %w", err)
	}
	if len(plans) == 0 {
		fmt.Println("No stored plans.")
		return nil
	}

	fmt.Printf("Stored plans (%d):\n", len(plans))
	for _, p := range plans {
		tasks, err := db.TasksForPlan(p.ID)
		if err != nil {
			return fmt.Errorf("load tasks for %s: %w", p.ID, err)
		}
		fmt.Printf("  %s  %-30s %s  %d tasks  %s\n",
			color.CyanString(p.ID), p.Name, statusColor(string(p.Status)),
			len(tasks), p.CreatedAt.Format(time.DateTime))
	}
	fmt.Println("\nUse 'taskweave status <plan id>' for details.")
	return nil
}

func displayPlan(db *state.DB, planID string) error {
	plan, err := db.GetPlan(planID)
	if err != nil {
		return fmt.Errorf("load plan: %w", err)
	}
	if plan == nil {
		return fmt.Errorf("plan %s not found", planID)
	}

	fmt.Printf("Plan: %s (%s)\n", plan.Name, color.CyanString(plan.ID))
	fmt.Printf("  Status: %s\n", statusColor(string(plan.Status)))
	if plan.ApprovedBy != "" {
		fmt.Printf("  Approved by: %s\n", plan.ApprovedBy)
	}
	fmt.Println("  Objectives:")
	for _, o := range plan.Objectives {
		fmt.Printf("    - %s\n", o)
	}

	tasks, err := db.TasksForPlan(plan.ID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	fmt.Printf("\nTasks (%d):\n", len(tasks))
	for _, t := range tasks {
		assignee := t.AssignedTo
		if assignee == "" {
			assignee = "-"
		}
		fmt.Printf("  %s  %-35s %-22s %s  %s\n",
			color.CyanString(t.ID), t.Name, t.Type, statusColor(string(t.Status)), assignee)
		for _, issue := range t.GateIssues {
			fmt.Printf("      %s %s\n", color.RedString("✗"), issue)
		}
	}

	rpt, err := db.GetReport(plan.ID)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if rpt != nil {
		fmt.Printf("\nExecutive Report (generated %s):\n", rpt.GeneratedAt.Format(time.DateTime))
		fmt.Printf("  Confidence: %.2f  Quality: %.2f\n", rpt.ConfidenceScore, rpt.QualityScore)
		for _, insight := range rpt.KeyInsights {
			fmt.Printf("  - %s\n", insight)
		}
	}
	return nil
}

func statusColor(status string) string {
	switch status {
	case string(models.PlanStatusCompleted), string(models.TaskStatusApproved):
		return color.GreenString(status)
	case string(models.PlanStatusCancelled), string(models.TaskStatusFailed):
		return color.RedString(status)
	case string(models.TaskStatusPeerReview), string(models.TaskStatusPending):
		return color.YellowString(status)
	default:
		return status
	}
}
