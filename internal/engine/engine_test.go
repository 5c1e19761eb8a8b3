// internal/engine/engine_test.go
package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fawad-mazhar/flowstate/internal/config"
	"github.com/fawad-mazhar/flowstate/internal/engine"
	"github.com/fawad-mazhar/flowstate/internal/models"
	"github.com/fawad-mazhar/flowstate/internal/store"
	"github.com/fawad-mazhar/flowstate/internal/store/leveldb"
	"github.com/fawad-mazhar/flowstate/internal/workflow"
	"github.com/stretchr/testify/require"
)

// fakeWakeup records published wake-ups instead of going through a broker
type fakeWakeup struct {
	mu     sync.Mutex
	runIDs []string
}

func (f *fakeWakeup) PublishWakeup(ctx context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runIDs = append(f.runIDs, runID)
	return nil
}

func (f *fakeWakeup) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runIDs...)
}

// conflictStore wraps a real store and makes the first n conditional
// writes lose, as if a concurrent scheduler pass got there first
type conflictStore struct {
	store.JobStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictStore) CompareAndSwap(ctx context.Context, run *models.RunState) error {
	c.mu.Lock()
	inject := c.conflicts > 0
	if inject {
		c.conflicts--
	}
	c.mu.Unlock()
	if inject {
		return store.ErrVersionConflict
	}
	return c.JobStore.CompareAndSwap(ctx, run)
}

func newTestStore(t *testing.T) store.JobStore {
	t.Helper()
	client, err := leveldb.NewClient(config.LevelDBConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestEngine(t *testing.T, st store.JobStore, defs ...*workflow.Definition) (*engine.Engine, *fakeWakeup) {
	t.Helper()
	wake := &fakeWakeup{}
	eng := engine.New(config.SchedulerConfig{MaxAttempts: 3, RetryIntervalMs: 1}, st, wake)
	for _, def := range defs {
		require.NoError(t, eng.Register(def))
	}
	return eng, wake
}

func value(fn func(run *workflow.RunContext) (any, error)) workflow.TaskFunc {
	return func(ctx context.Context, t *workflow.Task, run *workflow.RunContext) (any, error) {
		return fn(run)
	}
}

func constant(v any) workflow.TaskFunc {
	return value(func(*workflow.RunContext) (any, error) { return v, nil })
}

func failing(msg string) workflow.TaskFunc {
	return value(func(*workflow.RunContext) (any, error) { return nil, errors.New(msg) })
}

func futureTask(source, triggerID string) workflow.TaskFunc {
	return value(func(*workflow.RunContext) (any, error) {
		return models.NewFuture(source, triggerID), nil
	})
}

func taskResult(t *testing.T, run *models.RunState, taskID string) any {
	t.Helper()
	raw := run.Task(taskID).Result
	require.NotNil(t, raw)
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestLinearGraph_ResultsFlowDownstream(t *testing.T) {
	def := workflow.New("linear")
	require.NoError(t, def.AddTask("A", constant("r1")))
	require.NoError(t, def.AddTask("B", value(func(run *workflow.RunContext) (any, error) {
		got, err := run.TaskResult("A")
		if err != nil {
			return nil, err
		}
		if got != "r1" {
			return nil, fmt.Errorf("unexpected upstream result %v", got)
		}
		return "r2", nil
	}), "A"))

	st := newTestStore(t)
	eng, _ := newTestEngine(t, st, def)

	runID, err := eng.Start(context.Background(), "linear")
	require.NoError(t, err)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSucceeded, run.Status)
	require.Equal(t, "r1", taskResult(t, run, "A"))
	require.Equal(t, "r2", taskResult(t, run, "B"))
	require.NotNil(t, run.EndTime)
}

func TestDiamondWithFuture_ParksThenResumes(t *testing.T) {
	def := workflow.New("diamond")
	require.NoError(t, def.AddTask("A", constant("a")))
	require.NoError(t, def.AddTask("B", constant("b"), "A"))
	require.NoError(t, def.AddTask("C", futureTask("webhook", "trig-c"), "A"))
	require.NoError(t, def.AddTask("D", constant("d"), "B", "C"))

	st := newTestStore(t)
	eng, wake := newTestEngine(t, st, def)
	ctx := context.Background()

	runID, err := eng.Start(ctx, "diamond")
	require.NoError(t, err)

	// C is parked, so D stays pending and the run keeps running.
	run, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusRunning, run.Status)
	require.Equal(t, models.TaskStatusWaiting, run.Task("C").Status)
	require.Equal(t, models.TaskStatusPending, run.Task("D").Status)
	require.True(t, run.HasWaitingFuture())

	// The external completion event arrives.
	event := []byte(`{"triggerId": "trig-c", "result": {"exported": 42}}`)
	require.NoError(t, eng.HandleEvent(ctx, event))
	require.Equal(t, []string{runID}, wake.published())

	// The wake-up triggers another scheduler pass.
	require.NoError(t, eng.RunPass(ctx, runID))

	run, err = st.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSucceeded, run.Status)
	require.Equal(t, models.TaskStatusSucceeded, run.Task("C").Status)
	require.Equal(t, map[string]any{"exported": float64(42)}, taskResult(t, run, "C"))
	require.Equal(t, "d", taskResult(t, run, "D"))
}

func TestFailurePropagation_SkipsDescendantsOnly(t *testing.T) {
	def := workflow.New("fanout")
	require.NoError(t, def.AddTask("A", failing("boom")))
	require.NoError(t, def.AddTask("B", constant("b"), "A"))
	require.NoError(t, def.AddTask("C", constant("c"), "A"))
	require.NoError(t, def.AddTask("D", constant("d"), "B", "C"))
	require.NoError(t, def.AddTask("lone", constant("ok")))

	st := newTestStore(t)
	eng, _ := newTestEngine(t, st, def)

	runID, err := eng.Start(context.Background(), "fanout")
	require.NoError(t, err)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, run.Status)
	require.Equal(t, models.TaskStatusFailed, run.Task("A").Status)
	require.NotNil(t, run.Task("A").Error)
	require.Contains(t, *run.Task("A").Error, "boom")
	for _, id := range []string{"B", "C", "D"} {
		require.Equal(t, models.TaskStatusSkipped, run.Task(id).Status, "task %s", id)
		require.Nil(t, run.Task(id).StartTime, "task %s must never have run", id)
	}
	// The unrelated branch still ran to completion.
	require.Equal(t, models.TaskStatusSucceeded, run.Task("lone").Status)
}

func TestDuplicateEvent_IsSilentNoOp(t *testing.T) {
	def := workflow.New("waity")
	require.NoError(t, def.AddTask("W", futureTask("webhook", "trig-w")))
	require.NoError(t, def.AddTask("other", futureTask("webhook", "trig-other")))

	st := newTestStore(t)
	eng, wake := newTestEngine(t, st, def)
	ctx := context.Background()

	runID, err := eng.Start(ctx, "waity")
	require.NoError(t, err)

	event := []byte(`{"triggerId": "trig-w", "result": "done"}`)
	require.NoError(t, eng.HandleEvent(ctx, event))
	require.NoError(t, eng.RunPass(ctx, runID))

	after, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusSucceeded, after.Task("W").Status)
	require.Len(t, wake.published(), 1)

	// Redelivery of the same event must change nothing.
	require.NoError(t, eng.HandleEvent(ctx, event))

	again, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, after.Version, again.Version)
	require.Equal(t, after.Task("W").Status, again.Task("W").Status)
	require.Len(t, wake.published(), 1)
}

func TestUnmatchedEvent_IsDropped(t *testing.T) {
	def := workflow.New("quiet")
	require.NoError(t, def.AddTask("W", futureTask("webhook", "trig-w")))

	st := newTestStore(t)
	eng, wake := newTestEngine(t, st, def)
	ctx := context.Background()

	runID, err := eng.Start(ctx, "quiet")
	require.NoError(t, err)
	before, err := st.GetRun(ctx, runID)
	require.NoError(t, err)

	// Unknown trigger, foreign payload, garbage: all silently ignored.
	for _, payload := range [][]byte{
		[]byte(`{"triggerId": "someone-elses-job"}`),
		[]byte(`{"kind": "unrelated-system-event"}`),
		[]byte(`not even json`),
	} {
		require.NoError(t, eng.HandleEvent(ctx, payload))
	}

	after, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)
	require.Empty(t, wake.published())
}

func TestFailureEvent_FailsTaskAndRun(t *testing.T) {
	def := workflow.New("extfail")
	require.NoError(t, def.AddTask("W", futureTask("webhook", "trig-w")))
	require.NoError(t, def.AddTask("after", constant("x"), "W"))

	st := newTestStore(t)
	eng, _ := newTestEngine(t, st, def)
	ctx := context.Background()

	runID, err := eng.Start(ctx, "extfail")
	require.NoError(t, err)

	event := []byte(`{"triggerId": "trig-w", "success": false, "error": "warehouse query failed"}`)
	require.NoError(t, eng.HandleEvent(ctx, event))
	require.NoError(t, eng.RunPass(ctx, runID))

	run, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, run.Status)
	require.Equal(t, models.TaskStatusFailed, run.Task("W").Status)
	require.Contains(t, *run.Task("W").Error, "warehouse query failed")
	require.Equal(t, models.TaskStatusSkipped, run.Task("after").Status)
}

func TestRunPass_TerminalRunIsNoOp(t *testing.T) {
	def := workflow.New("done")
	require.NoError(t, def.AddTask("A", constant("a")))

	st := newTestStore(t)
	eng, _ := newTestEngine(t, st, def)
	ctx := context.Background()

	runID, err := eng.Start(ctx, "done")
	require.NoError(t, err)
	before, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSucceeded, before.Status)

	// Duplicate wake-ups after completion must not touch the store.
	require.NoError(t, eng.RunPass(ctx, runID))
	require.NoError(t, eng.RunPass(ctx, runID))

	after, err := st.GetRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, before.Version, after.Version)
}

func TestRunPass_RetriesThroughVersionConflict(t *testing.T) {
	def := workflow.New("contended")
	require.NoError(t, def.AddTask("A", constant("a")))

	cs := &conflictStore{JobStore: newTestStore(t), conflicts: 2}
	eng, _ := newTestEngine(t, cs, def)

	runID, err := eng.Start(context.Background(), "contended")
	require.NoError(t, err)

	run, err := cs.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSucceeded, run.Status)
}

func TestRunPass_SurfacesExhaustedConflicts(t *testing.T) {
	def := workflow.New("hopeless")
	require.NoError(t, def.AddTask("A", constant("a")))

	cs := &conflictStore{JobStore: newTestStore(t), conflicts: 1000}
	eng, _ := newTestEngine(t, cs, def)

	_, err := eng.Start(context.Background(), "hopeless")
	require.Error(t, err)
	require.ErrorIs(t, err, store.ErrVersionConflict)
}

func TestTaskBody_ReadingUnresolvedSiblingFails(t *testing.T) {
	def := workflow.New("nosy")
	require.NoError(t, def.AddTask("slow", futureTask("webhook", "trig-slow")))
	require.NoError(t, def.AddTask("nosy", value(func(run *workflow.RunContext) (any, error) {
		// References a task it does not depend on.
		return run.TaskResult("slow")
	})))

	st := newTestStore(t)
	eng, _ := newTestEngine(t, st, def)

	runID, err := eng.Start(context.Background(), "nosy")
	require.NoError(t, err)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, models.TaskStatusFailed, run.Task("nosy").Status)
	require.Contains(t, *run.Task("nosy").Error, "not available")
}

func TestTaskBody_PanicBecomesTaskFailure(t *testing.T) {
	def := workflow.New("panicky")
	require.NoError(t, def.AddTask("A", value(func(*workflow.RunContext) (any, error) {
		panic("oh no")
	})))

	st := newTestStore(t)
	eng, _ := newTestEngine(t, st, def)

	runID, err := eng.Start(context.Background(), "panicky")
	require.NoError(t, err)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, run.Status)
	require.Contains(t, *run.Task("A").Error, "oh no")
}

func TestStart_UnknownJobFails(t *testing.T) {
	st := newTestStore(t)
	eng, _ := newTestEngine(t, st)

	_, err := eng.Start(context.Background(), "ghost")
	require.Error(t, err)
}

func TestRegister_RejectsInvalidDefinition(t *testing.T) {
	def := workflow.New("cyclic")
	require.NoError(t, def.AddTask("a", constant(1), "b"))
	require.NoError(t, def.AddTask("b", constant(2), "a"))

	st := newTestStore(t)
	eng, _ := newTestEngine(t, st)

	err := eng.Register(def)
	var defErr *workflow.DefinitionError
	require.ErrorAs(t, err, &defErr)
}
