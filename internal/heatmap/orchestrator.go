package heatmap

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Options configures an Orchestrator.
type Options struct {
	// SimulateDefault is the process-wide fallback policy used when a request
	// carries no override.
	SimulateDefault bool
	// MaxConcurrent bounds in-flight automation sessions. Zero means unbounded.
	MaxConcurrent int64
	// BackendLabel names the automator in failure messages. Empty means
	// DefaultBackendLabel.
	BackendLabel string
	// OnFailure, when set, is called after a capture fails. It must not block.
	OnFailure func(ctx context.Context, env Envelope)
}

// Orchestrator runs captures and applies the fallback policy.
type Orchestrator struct {
	symbols   SymbolSet
	automator Automator
	synth     *Synthesizer
	opts      Options
	sem       *semaphore.Weighted
	now       func() time.Time
}

func NewOrchestrator(symbols SymbolSet, automator Automator, synth *Synthesizer, opts Options) *Orchestrator {
	o := &Orchestrator{
		symbols:   symbols,
		automator: automator,
		synth:     synth,
		opts:      opts,
		now:       time.Now,
	}
	if o.synth == nil {
		o.synth = NewSynthesizer(false)
	}
	if opts.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	return o
}

// SimulateDefault reports the process-wide fallback policy.
func (o *Orchestrator) SimulateDefault() bool { return o.opts.SimulateDefault }

// Capture validates the raw inputs and runs one capture. Validation errors are
// returned before any automation call is made.
func (o *Orchestrator) Capture(ctx context.Context, symbol, period string, override SimulateOverride) (Envelope, error) {
	req, err := NewRequest(o.symbols, symbol, period, override)
	if err != nil {
		slog.Info("capture rejected", "symbol", symbol, "time_period", period, "error", err)
		return Envelope{}, err
	}
	return o.Run(ctx, req)
}

// Run executes a validated request. A failed automation session is not an
// error: it is reported in the envelope, with a fallback attached when the
// resolved policy allows it, unless ctx is already done: then neither the
// fallback nor OnFailure runs. The returned error is reserved for invalid
// requests, cancellation while waiting for a session slot, and synthesis
// failures.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Envelope, error) {
	if !req.valid() {
		return Envelope{}, newError(CodeValidation, "capture request was not validated", nil)
	}

	allowed := ResolvePolicy(req.Override(), o.opts.SimulateDefault)
	env := Envelope{
		CaptureID:       uuid.NewString(),
		Backend:         o.opts.BackendLabel,
		Symbol:          req.Symbol(),
		TimePeriod:      req.Period(),
		SimulateAllowed: allowed,
	}

	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			return Envelope{}, newError(CodeCanceled, "capture canceled while waiting for an automation slot", err)
		}
		defer o.sem.Release(1)
	}

	start := o.now()
	outcome := o.automator.Capture(ctx, req)
	env.Primary = outcome

	logAttrs := []any{
		"capture_id", env.CaptureID,
		"symbol", env.Symbol,
		"time_period", env.TimePeriod,
		"override", req.Override().String(),
		"simulate_allowed", allowed,
		"duration_ms", time.Since(start).Milliseconds(),
	}

	if outcome.OK() {
		slog.Info("heatmap capture ok", append(logAttrs, "image_ref", outcome.ImageRef)...)
		return env, nil
	}

	// A caller that went away reads neither the placeholder nor the alert.
	if ctx.Err() != nil {
		slog.Info("heatmap capture abandoned by caller", append(logAttrs, "step", outcome.FailedStep(), "error", outcome.Err)...)
		return env, nil
	}

	slog.Error("heatmap capture failed", append(logAttrs, "step", outcome.FailedStep(), "error", outcome.Err)...)

	if allowed {
		payload, err := o.synth.Synthesize(env.Symbol, env.TimePeriod, o.now(), outcome.Err)
		if err != nil {
			slog.Error("fallback synthesis failed", "capture_id", env.CaptureID, "error", err)
			return Envelope{}, err
		}
		env.Fallback = &payload
		env.FallbackProvided = true
	}

	if o.opts.OnFailure != nil {
		o.opts.OnFailure(ctx, env)
	}
	return env, nil
}
