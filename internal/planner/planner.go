// Package planner defines the boundary to the plan generator, which expands
// business objectives into a typed task graph.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskweave/taskweave/pkg/models"
)

// TaskSpec describes one task the generator proposes. Dependencies reference
// other specs by index because task IDs are only assigned when the engine
// materializes the plan.
type TaskSpec struct {
	Name           string
	Description    string
	Type           models.TaskType
	Priority       int
	RequiredSkills []string
	DependsOn      []int
}

// Generator expands objectives into a task graph proposal. The engine
// validates the proposal is acyclic before activating a plan, so generators
// (including LLM-backed ones) are untrusted.
type Generator interface {
	GenerateTasks(ctx context.Context, objectives []string, dataProfile string) ([]TaskSpec, error)
}

// RuleBased is a deterministic generator that maps objective keywords to
// analysis types. Every plan starts with a profiling pass, runs one analysis
// task per objective against it, and ends with a visualization task over the
// full set.
type RuleBased struct{}

// NewRuleBased creates a rule-based generator.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

// objectiveRules maps keyword fragments to the analysis type that serves them.
// First match wins, so more specific fragments come first.
var objectiveRules = []struct {
	fragment string
	taskType models.TaskType
}{
	{"correlat", models.TaskTypeCorrelationAnalysis},
	{"relationship", models.TaskTypeCorrelationAnalysis},
	{"anomal", models.TaskTypeAnomalyDetection},
	{"outlier", models.TaskTypeAnomalyDetection},
	{"segment", models.TaskTypeSegmentation},
	{"cluster", models.TaskTypeSegmentation},
	{"cohort", models.TaskTypeSegmentation},
	{"predict", models.TaskTypePredictiveModeling},
	{"forecast", models.TaskTypePredictiveModeling},
	{"model", models.TaskTypePredictiveModeling},
	{"trend", models.TaskTypeTimeSeries},
	{"season", models.TaskTypeTimeSeries},
	{"over time", models.TaskTypeTimeSeries},
	{"visual", models.TaskTypeVisualization},
	{"chart", models.TaskTypeVisualization},
	{"dashboard", models.TaskTypeVisualization},
}

// typeSkills lists the skills a worker needs for each analysis type.
var typeSkills = map[models.TaskType][]string{
	models.TaskTypeDataProfiling:       {"sql", "data_quality"},
	models.TaskTypeStatisticalAnalysis: {"statistics"},
	models.TaskTypeCorrelationAnalysis: {"statistics", "sql"},
	models.TaskTypeTimeSeries:          {"statistics", "time_series"},
	models.TaskTypePredictiveModeling:  {"machine_learning", "statistics"},
	models.TaskTypeAnomalyDetection:    {"machine_learning", "statistics"},
	models.TaskTypeSegmentation:        {"machine_learning", "sql"},
	models.TaskTypeVisualization:       {"visualization"},
}

// classify maps one objective to an analysis type.
func classify(objective string) models.TaskType {
	lower := strings.ToLower(objective)
	for _, rule := range objectiveRules {
		if strings.Contains(lower, rule.fragment) {
			return rule.taskType
		}
	}
	return models.TaskTypeStatisticalAnalysis
}

// GenerateTasks expands objectives into a dependency-ordered task proposal.
func (g *RuleBased) GenerateTasks(ctx context.Context, objectives []string, dataProfile string) ([]TaskSpec, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(objectives) == 0 {
		return nil, &models.ValidationError{Field: "objectives", Reason: "at least one objective is required"}
	}

	specs := []TaskSpec{{
		Name:           "Profile source data",
		Description:    fmt.Sprintf("Assess structure and quality of %s before analysis", dataProfile),
		Type:           models.TaskTypeDataProfiling,
		Priority:       5,
		RequiredSkills: typeSkills[models.TaskTypeDataProfiling],
	}}

	var analysisIdx []int
	wantViz := false
	for _, objective := range objectives {
		taskType := classify(objective)
		if taskType == models.TaskTypeVisualization {
			// Visualization runs once, after every analysis.
			wantViz = true
			continue
		}
		specs = append(specs, TaskSpec{
			Name:           objective,
			Description:    fmt.Sprintf("Address objective: %s", objective),
			Type:           taskType,
			Priority:       4,
			RequiredSkills: typeSkills[taskType],
			DependsOn:      []int{0},
		})
		analysisIdx = append(analysisIdx, len(specs)-1)
	}

	if len(analysisIdx) == 0 {
		// All objectives were visualization asks; add a baseline analysis
		// so there is something to draw.
		specs = append(specs, TaskSpec{
			Name:           "Summarize key metrics",
			Description:    "Descriptive statistics over the profiled data",
			Type:           models.TaskTypeStatisticalAnalysis,
			Priority:       4,
			RequiredSkills: typeSkills[models.TaskTypeStatisticalAnalysis],
			DependsOn:      []int{0},
		})
		analysisIdx = append(analysisIdx, len(specs)-1)
	}

	if wantViz {
		specs = append(specs, TaskSpec{
			Name:           "Prepare visualizations",
			Description:    "Charts covering every completed analysis",
			Type:           models.TaskTypeVisualization,
			Priority:       2,
			RequiredSkills: typeSkills[models.TaskTypeVisualization],
			DependsOn:      analysisIdx,
		})
	}

	return specs, nil
}

// Verify RuleBased implements Generator at compile time.
var _ Generator = (*RuleBased)(nil)
