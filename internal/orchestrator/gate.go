package orchestrator

import (
	"fmt"
	"strings"

	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/pkg/models"
)

// Gate is the automated quality check every result must pass before it can
// move toward approval. A failing result sends its task back to Pending.
type Gate struct {
	minConfidence float64
	minInsights   int
}

// NewGate creates a gate with the given thresholds.
func NewGate(cfg config.GateConfig) *Gate {
	return &Gate{
		minConfidence: cfg.MinConfidence,
		minInsights:   cfg.MinInsights,
	}
}

// Evaluate checks a result against the gate thresholds. It returns whether
// the result passed and the list of issues found. All checks run even after
// the first failure so the assignee sees everything to fix at once.
func (g *Gate) Evaluate(r *models.Result) (bool, []string) {
	var issues []string

	if r == nil {
		return false, []string{"no result attached"}
	}
	if r.Confidence < g.minConfidence {
		issues = append(issues, fmt.Sprintf("confidence %.2f is below the minimum %.2f", r.Confidence, g.minConfidence))
	}
	if strings.TrimSpace(r.Summary) == "" {
		issues = append(issues, "summary is empty")
	}
	if len(r.Insights) < g.minInsights {
		issues = append(issues, fmt.Sprintf("result has %d insights, at least %d required", len(r.Insights), g.minInsights))
	}

	return len(issues) == 0, issues
}
