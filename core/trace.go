package core

import (
	"sync"
	"time"
)

// StepStatus is the state of one traced pipeline stage.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepError   StepStatus = "error"
)

// TraceStep records the timing and data of one pipeline stage.
type TraceStep struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    time.Time  `json:"endedAt,omitzero"`
	DurationMs int64      `json:"durationMs"`
	Input      any        `json:"input,omitempty"`
	Output     any        `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ProcessTrace is an ordered, concurrency-safe record of pipeline stages.
// It observes control flow and never drives it.
type ProcessTrace struct {
	mu    sync.Mutex
	steps []*TraceStep
	now   func() time.Time
}

// NewProcessTrace creates an empty trace.
func NewProcessTrace() *ProcessTrace {
	return &ProcessTrace{now: time.Now}
}

// Begin records a running step with its input.
func (t *ProcessTrace) Begin(name string, input any) *TraceStep {
	if t == nil {
		return &TraceStep{Name: name}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	step := &TraceStep{
		Name:      name,
		Status:    StepRunning,
		StartedAt: t.now(),
		Input:     input,
	}
	t.steps = append(t.steps, step)
	return step
}

// End completes a step as success with output, or as error when err is set.
func (t *ProcessTrace) End(step *TraceStep, output any, err error) {
	if t == nil || step == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	step.EndedAt = t.now()
	if step.EndedAt.Before(step.StartedAt) {
		step.EndedAt = step.StartedAt
	}
	step.DurationMs = step.EndedAt.Sub(step.StartedAt).Milliseconds()
	if err != nil {
		step.Status = StepError
		step.Error = err.Error()
		return
	}
	step.Status = StepSuccess
	step.Output = output
}

// Trace runs fn as a traced step.
func Trace[T any](t *ProcessTrace, name string, input any, fn func() (T, error)) (T, error) {
	step := t.Begin(name, input)
	out, err := fn()
	t.End(step, out, err)
	return out, err
}

// Steps returns a copy of the recorded steps in start order.
func (t *ProcessTrace) Steps() []TraceStep {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceStep, len(t.steps))
	for i, s := range t.steps {
		out[i] = *s
	}
	return out
}

// TotalDuration is the wall-clock span from the first start to the last end.
func (t *ProcessTrace) TotalDuration() time.Duration {
	steps := t.Steps()
	if len(steps) == 0 {
		return 0
	}
	start := steps[0].StartedAt
	end := start
	for _, s := range steps {
		if s.StartedAt.Before(start) {
			start = s.StartedAt
		}
		if s.EndedAt.After(end) {
			end = s.EndedAt
		}
	}
	return end.Sub(start)
}

// Snapshot is the serialisable form of a trace.
type Snapshot struct {
	Steps           []TraceStep `json:"steps"`
	TotalDurationMs int64       `json:"totalDurationMs"`
}

// Snapshot freezes the trace for a response body.
func (t *ProcessTrace) Snapshot() Snapshot {
	steps := t.Steps()
	if steps == nil {
		steps = []TraceStep{}
	}
	return Snapshot{Steps: steps, TotalDurationMs: t.TotalDuration().Milliseconds()}
}
