// internal/jobs/sample.go
package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/fawad-mazhar/flowstate/internal/models"
	"github.com/fawad-mazhar/flowstate/internal/workflow"
)

// DailyReport builds a small demo pipeline exercising every task outcome:
// plain results, sibling result reads and an async export that completes
// through an external webhook event carrying the trigger id
// "export-<runId>".
func DailyReport() (*workflow.Definition, error) {
	def := workflow.New("daily-report")

	if err := def.AddTask("extract", extractTask); err != nil {
		return nil, err
	}
	if err := def.AddTask("enrich", enrichTask, "extract"); err != nil {
		return nil, err
	}
	if err := def.AddTask("export", exportTask, "enrich"); err != nil {
		return nil, err
	}
	if err := def.AddTask("summarize", summarizeTask, "enrich", "export"); err != nil {
		return nil, err
	}

	return def, nil
}

func extractTask(ctx context.Context, t *workflow.Task, run *workflow.RunContext) (any, error) {
	log.Printf("Extracting source rows for run %s", run.RunID())
	return map[string]any{"rows": 128}, nil
}

func enrichTask(ctx context.Context, t *workflow.Task, run *workflow.RunContext) (any, error) {
	extracted, err := run.TaskResult("extract")
	if err != nil {
		return nil, err
	}
	rows := extracted.(map[string]any)["rows"]
	log.Printf("Enriching %v rows for run %s", rows, run.RunID())
	return map[string]any{"rows": rows, "enriched": true}, nil
}

// exportTask hands the data to an external exporter and defers completion
// to the exporter's callback instead of blocking on it.
func exportTask(ctx context.Context, t *workflow.Task, run *workflow.RunContext) (any, error) {
	triggerID := fmt.Sprintf("export-%s", run.RunID())
	log.Printf("Submitted export for run %s, awaiting completion of trigger %s", run.RunID(), triggerID)
	return models.NewFuture("webhook", triggerID), nil
}

func summarizeTask(ctx context.Context, t *workflow.Task, run *workflow.RunContext) (any, error) {
	exported, err := run.TaskResult("export")
	if err != nil {
		return nil, err
	}
	return map[string]any{"report": "daily", "export": exported}, nil
}
