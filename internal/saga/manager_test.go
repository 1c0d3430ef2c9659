package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type recordingStep struct {
	id          StepID
	fail        error
	executed    *[]StepID
	compensated *[]StepID
}

func (s recordingStep) ID() StepID { return s.id }

func (s recordingStep) Execute(ctx context.Context, data SagaData) StepResult {
	*s.executed = append(*s.executed, s.id)
	if s.fail != nil {
		return Fail(s.fail)
	}
	data[string(s.id)] = true
	return Ok(string(s.id))
}

func (s recordingStep) Compensate(ctx context.Context, data SagaData) error {
	*s.compensated = append(*s.compensated, s.id)
	return nil
}

type testDefinition struct {
	steps []Step
}

func (d testDefinition) ID() string             { return "test" }
func (d testDefinition) Steps() []Step          { return d.steps }
func (d testDefinition) Timeout() time.Duration { return time.Second }

func TestManager_Run(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name            string
		failAt          int
		wantState       SagaState
		wantExecuted    []StepID
		wantCompensated []StepID
	}{
		{"all steps succeed", -1, SagaStateCompleted, []StepID{"a", "b", "c"}, nil},
		{"middle step fails", 1, SagaStateCompensated, []StepID{"a", "b"}, []StepID{"a"}},
		{"last step fails", 2, SagaStateCompensated, []StepID{"a", "b", "c"}, []StepID{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var executed, compensated []StepID
			var steps []Step
			for i, id := range []StepID{"a", "b", "c"} {
				step := recordingStep{id: id, executed: &executed, compensated: &compensated}
				if i == tt.failAt {
					step.fail = errBoom
				}
				steps = append(steps, step)
			}

			m := NewManager(zap.NewNop())
			m.RegisterDefinition(testDefinition{steps: steps})

			instance, err := m.Run(context.Background(), "test", SagaData{})
			if tt.failAt >= 0 && !errors.Is(err, errBoom) {
				t.Errorf("Expected step error, got %v", err)
			}
			if tt.failAt < 0 && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if instance.State != tt.wantState {
				t.Errorf("Expected state %s, got %s", tt.wantState, instance.State)
			}
			if !equalIDs(executed, tt.wantExecuted) {
				t.Errorf("Expected executed %v, got %v", tt.wantExecuted, executed)
			}
			if !equalIDs(compensated, tt.wantCompensated) {
				t.Errorf("Expected compensated %v, got %v", tt.wantCompensated, compensated)
			}
			if instance.CompletedAt == nil {
				t.Error("Expected completion time")
			}
		})
	}
}

func TestManager_StepRecords(t *testing.T) {
	var executed, compensated []StepID
	m := NewManager(zap.NewNop())
	m.RegisterDefinition(testDefinition{steps: []Step{
		recordingStep{id: "a", executed: &executed, compensated: &compensated},
		recordingStep{id: "b", fail: errors.New("nope"), executed: &executed, compensated: &compensated},
	}})

	instance, _ := m.Run(context.Background(), "test", SagaData{})
	a, _ := instance.Step("a")
	b, _ := instance.Step("b")
	if a.State != StepStateCompensated || a.Result != "a" {
		t.Errorf("Unexpected record for a: %+v", a)
	}
	if b.State != StepStateFailed || b.Error != "nope" {
		t.Errorf("Unexpected record for b: %+v", b)
	}
	if instance.Data["a"] != true {
		t.Error("Expected step data shared through the saga")
	}

	var types []string
	for len(m.EventChannel()) > 0 {
		types = append(types, (<-m.EventChannel()).Type)
	}
	want := []string{EventSagaStarted, EventStepCompleted, EventStepFailed, EventStepCompensated, EventSagaCompensated}
	if len(types) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestManager_UnknownDefinition(t *testing.T) {
	m := NewManager(zap.NewNop())
	if _, err := m.Run(context.Background(), "missing", SagaData{}); err == nil {
		t.Error("Expected error for unknown definition")
	}
}

func equalIDs(a, b []StepID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
