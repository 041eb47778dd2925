package step_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"vidsight/internal/pipeline"
	"vidsight/internal/step"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want step.ErrorKind
	}{
		{"transient", step.Wrap(step.ErrTransient, "extraction", "fetch", "503", nil), step.KindTransient},
		{"rate limit", step.Wrap(step.ErrRateLimited, "extraction", "fetch", "429", nil), step.KindRateLimit},
		{"validation", step.Wrap(step.ErrValidation, "extraction", "parse url", "bad input", nil), step.KindValidation},
		{"quota", step.Wrap(step.ErrQuotaExhausted, "extraction", "fetch", "daily quota", nil), step.KindQuotaExhausted},
		{"timeout marker", step.Wrap(step.ErrTimeout, "transcription", "call", "slow", nil), step.KindTimeout},
		{"bare deadline", context.DeadlineExceeded, step.KindTimeout},
		{"unwrapped", errors.New("mystery"), step.KindUnclassified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := step.KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := step.Wrap(step.ErrTransient, "extraction", "fetch comments", "upstream unavailable", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error lost its cause")
	}
	if !errors.Is(err, step.ErrTransient) {
		t.Fatal("wrapped error lost its marker")
	}
}

func TestClassifyDefaults(t *testing.T) {
	p := step.DefaultPolicy()

	d := p.Classify(step.KindTransient)
	if !d.Retry || d.MaxAttempts != 3 || d.BackoffBase != 2*time.Second {
		t.Fatalf("transient decision = %+v", d)
	}
	if d2 := p.Classify(step.KindTimeout); d2 != d {
		t.Fatalf("timeout should classify like transient, got %+v", d2)
	}

	d = p.Classify(step.KindRateLimit)
	if !d.Retry || d.MaxAttempts != 5 || d.BackoffBase != 60*time.Second {
		t.Fatalf("rate limit decision = %+v", d)
	}

	for _, kind := range []step.ErrorKind{step.KindValidation, step.KindQuotaExhausted, step.KindUnclassified} {
		if d := p.Classify(kind); d.Retry {
			t.Fatalf("%s should abort, got %+v", kind, d)
		}
	}
}

func TestDelayDoubles(t *testing.T) {
	d := step.Decision{Retry: true, MaxAttempts: 3, BackoffBase: 2 * time.Second}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, expect := range want {
		if got := d.Delay(i + 1); got != expect {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, got, expect)
		}
	}
	if got := (step.Decision{}).Delay(1); got != 0 {
		t.Fatalf("abort decision should have zero delay, got %v", got)
	}
}

type fixedExecutor struct {
	id pipeline.Step
}

func (f fixedExecutor) Step() pipeline.Step { return f.id }

func (f fixedExecutor) Execute(context.Context, *step.Request, step.ProgressFunc) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f fixedExecutor) HealthCheck(context.Context) step.Health {
	return step.Healthy(string(f.id))
}

func TestRegistryValidate(t *testing.T) {
	g := pipeline.Default()

	var execs []step.Executor
	for _, s := range g.Steps() {
		execs = append(execs, fixedExecutor{id: s})
	}
	reg, err := step.NewRegistry(execs...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if err := reg.Validate(g); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	partial, err := step.NewRegistry(fixedExecutor{id: pipeline.StepExtraction})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if err := partial.Validate(g); err == nil {
		t.Fatal("Validate accepted a registry missing executors")
	}

	if _, err := step.NewRegistry(fixedExecutor{id: "x"}, fixedExecutor{id: "x"}); err == nil {
		t.Fatal("NewRegistry accepted duplicate executors")
	}
}

func TestDecodeOutput(t *testing.T) {
	req := &step.Request{
		Outputs: map[pipeline.Step]json.RawMessage{
			pipeline.StepExtraction: json.RawMessage(`{"video_id":"abc"}`),
		},
	}

	var decoded struct {
		VideoID string `json:"video_id"`
	}
	if err := req.DecodeOutput(pipeline.StepExtraction, &decoded); err != nil {
		t.Fatalf("DecodeOutput failed: %v", err)
	}
	if decoded.VideoID != "abc" {
		t.Fatalf("decoded video id = %q", decoded.VideoID)
	}

	err := req.DecodeOutput(pipeline.StepTranscription, &decoded)
	if step.KindOf(err) != step.KindValidation {
		t.Fatalf("missing dependency should classify as validation, got %v", err)
	}
}
