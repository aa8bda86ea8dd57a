// Package report composes the executive report from a plan's finalized task
// results.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskweave/taskweave/internal/workflow"
	"github.com/taskweave/taskweave/pkg/models"
)

// Report is the executive summary assembled once every task in a plan has
// reached a terminal success state.
type Report struct {
	PlanID          string    `json:"plan_id"`
	PlanName        string    `json:"plan_name"`
	Objectives      []string  `json:"objectives"`
	KeyInsights     []string  `json:"key_insights"`
	Recommendations []string  `json:"recommendations"`
	ConfidenceScore float64   `json:"confidence_score"`
	QualityScore    float64   `json:"quality_score"`
	TaskCount       int       `json:"task_count"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// priorityKeywords mark insights that lead the report; everything else
// follows in first-seen order.
var priorityKeywords = []string{"significant", "critical", "important", "anomaly", "trend", "correlation"}

// fallbackRecommendations is used when no recommendation rule fires.
var fallbackRecommendations = []string{
	"Review the detailed task results for additional context",
	"Schedule a follow-up analysis cycle on the same objectives",
	"Validate key findings against a fresh data extract",
}

// Aggregator builds reports and routes them into final-report approval.
type Aggregator struct {
	workflow *workflow.Workflow
}

// New creates an aggregator that submits finished reports for approval.
func New(w *workflow.Workflow) *Aggregator {
	return &Aggregator{workflow: w}
}

// Aggregate composes the report for a plan and opens a FinalReport approval
// request in the manager queue. Every task must be in a satisfied state; a
// partially complete plan never produces a report.
func (a *Aggregator) Aggregate(plan *models.Plan, tasks []*models.Task, submitter string) (*Report, *models.ApprovalRequest, error) {
	for _, t := range tasks {
		if !t.Status.Satisfied() {
			return nil, nil, fmt.Errorf("task %s is %s; the plan is not complete", t.ID, t.Status)
		}
	}
	if len(tasks) == 0 {
		return nil, nil, fmt.Errorf("plan %s has no tasks to aggregate", plan.ID)
	}

	rpt := Compose(plan, tasks)
	req, err := a.workflow.Submit(models.ApprovalKindFinalReport, plan.ID, submitter, "")
	if err != nil {
		return nil, nil, err
	}
	return rpt, req, nil
}

// Compose builds the report without side effects.
func Compose(plan *models.Plan, tasks []*models.Task) *Report {
	var results []*models.Result
	var insights []string
	for _, t := range tasks {
		if t.Result == nil {
			continue
		}
		results = append(results, t.Result)
		insights = append(insights, t.Result.Insights...)
	}

	var confidence, quality float64
	for _, r := range results {
		confidence += r.Confidence
		quality += r.QualityScore
	}
	if n := len(results); n > 0 {
		confidence /= float64(n)
		quality /= float64(n)
	}

	return &Report{
		PlanID:          plan.ID,
		PlanName:        plan.Name,
		Objectives:      plan.Objectives,
		KeyInsights:     PrioritizeInsights(DedupeInsights(insights)),
		Recommendations: Recommendations(tasks),
		ConfidenceScore: confidence,
		QualityScore:    quality,
		TaskCount:       len(tasks),
		GeneratedAt:     time.Now(),
	}
}

// DedupeInsights removes duplicates preserving first-seen order.
func DedupeInsights(insights []string) []string {
	seen := make(map[string]bool, len(insights))
	var out []string
	for _, in := range insights {
		if !seen[in] {
			seen[in] = true
			out = append(out, in)
		}
	}
	return out
}

// PrioritizeInsights moves insights containing a priority keyword ahead of
// the rest, keeping relative order stable within each group.
func PrioritizeInsights(insights []string) []string {
	var prioritized, rest []string
	for _, in := range insights {
		if hasPriorityKeyword(in) {
			prioritized = append(prioritized, in)
		} else {
			rest = append(rest, in)
		}
	}
	return append(prioritized, rest...)
}

func hasPriorityKeyword(insight string) bool {
	lower := strings.ToLower(insight)
	for _, kw := range priorityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Recommendations derives next steps from the finding categories present in
// the task results. When no rule fires the deterministic fallback list is
// returned.
func Recommendations(tasks []*models.Task) []string {
	var recs []string

	if v, ok := maxMetric(tasks, models.TaskTypeCorrelationAnalysis, "max_correlation"); ok && v >= 0.7 {
		recs = append(recs, fmt.Sprintf("Investigate the strongly correlated drivers (max correlation %.2f) for causal levers", v))
	}
	if v, ok := maxMetric(tasks, models.TaskTypeAnomalyDetection, "anomaly_count"); ok && v > 0 {
		recs = append(recs, fmt.Sprintf("Audit the %d detected anomalies before acting on aggregate figures", int(v)))
	}
	if v, ok := maxMetric(tasks, models.TaskTypeTimeSeries, "trend_slope"); ok {
		if v > 0 {
			recs = append(recs, "Plan capacity for the sustained upward trend")
		} else if v < 0 {
			recs = append(recs, "Investigate the drivers behind the downward trend")
		}
	}
	if v, ok := maxMetric(tasks, models.TaskTypeSegmentation, "segments"); ok && v >= 2 {
		recs = append(recs, fmt.Sprintf("Tailor engagement strategies to the %d identified segments", int(v)))
	}
	if v, ok := maxMetric(tasks, models.TaskTypePredictiveModeling, "r_squared"); ok {
		if v >= 0.8 {
			recs = append(recs, fmt.Sprintf("Deploy the predictive model (R-squared %.2f) into the planning workflow", v))
		} else if v < 0.5 {
			recs = append(recs, fmt.Sprintf("Collect more features before relying on the model (R-squared %.2f)", v))
		}
	}

	if len(recs) == 0 {
		return append([]string(nil), fallbackRecommendations...)
	}
	return recs
}

// maxMetric returns the largest value of a named metric across results of
// the given task type.
func maxMetric(tasks []*models.Task, taskType models.TaskType, metric string) (float64, bool) {
	var max float64
	found := false
	for _, t := range tasks {
		if t.Type != taskType || t.Result == nil {
			continue
		}
		if v, ok := t.Result.Metrics[metric]; ok {
			if !found || v > max {
				max = v
				found = true
			}
		}
	}
	return max, found
}
