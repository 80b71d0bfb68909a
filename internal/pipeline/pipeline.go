// Package pipeline turns parsed segments into image and narration assets.
// Every segment runs as its own task; tasks only contend on a per-kind
// concurrency cap and on the single lock that guards write-back into the
// Run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"shorteezy/internal/backend"
	"shorteezy/internal/model"
	"shorteezy/internal/retry"
	"shorteezy/internal/runstore"
)

// Terminal reasons recorded on segments.
const (
	ReasonEmptyContent     = "empty_content"
	ReasonCanceled         = "canceled"
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonPermanent        = "permanent_error"
	ReasonExistingAsset    = "existing_asset"
)

type Options struct {
	MaxConcurrencyImage  int
	MaxConcurrencySpeech int
	MaxRetries           int
	InitialBackoff       time.Duration
	JitterMax            time.Duration
	CallTimeout          time.Duration
	ImageSize            backend.Size
	// PromptSuffix is appended to every image description.
	PromptSuffix string
	// Checkpoint rewrites data.json and run.json after every status change.
	Checkpoint bool
	Observer   Observer

	// Test hooks. Nil means real time.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxConcurrencyImage:  2,
		MaxConcurrencySpeech: 1,
		MaxRetries:           3,
		InitialBackoff:       time.Second,
		JitterMax:            time.Second,
		CallTimeout:          60 * time.Second,
		ImageSize:            backend.Size{Width: 1024, Height: 1792},
		Checkpoint:           true,
	}
}

type Orchestrator struct {
	backend backend.Backend
	layout  runstore.Layout
	log     *log.Logger
	opts    Options
	policy  retry.Policy
	obs     Observer

	imageSem  chan struct{}
	speechSem chan struct{}
}

func New(b backend.Backend, layout runstore.Layout, logger *log.Logger, opts Options) (*Orchestrator, error) {
	if b == nil {
		return nil, errors.New("pipeline: backend is required")
	}
	if opts.MaxConcurrencyImage <= 0 || opts.MaxConcurrencySpeech <= 0 {
		return nil, fmt.Errorf("pipeline: concurrency must be positive (image=%d speech=%d)", opts.MaxConcurrencyImage, opts.MaxConcurrencySpeech)
	}
	if opts.MaxRetries <= 0 {
		return nil, fmt.Errorf("pipeline: max retries must be positive, got %d", opts.MaxRetries)
	}
	if logger == nil {
		logger = log.Default()
	}
	jitter := opts.Jitter
	if jitter == nil {
		jitter = retry.UniformJitter(opts.JitterMax)
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = retry.SleepContext
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Orchestrator{
		backend: b,
		layout:  layout,
		log:     logger,
		opts:    opts,
		policy: retry.Policy{
			MaxAttempts: opts.MaxRetries,
			Backoff:     retry.Exponential(opts.InitialBackoff),
			Jitter:      jitter,
			Sleep:       sleep,
		},
		obs:       obs,
		imageSem:  make(chan struct{}, opts.MaxConcurrencyImage),
		speechSem: make(chan struct{}, opts.MaxConcurrencySpeech),
	}, nil
}

// Run generates every segment that is not already Succeeded and returns
// once each has reached a terminal status. Per-segment failures are
// recorded on the segment and never returned. The returned error is
// either ctx's error after cancellation or a failure to persist the final
// manifest.
func (o *Orchestrator) Run(ctx context.Context, run *model.Run) error {
	if err := o.layout.EnsureDirs(); err != nil {
		return err
	}
	if n, err := o.layout.SweepTempFiles(); err != nil {
		o.log.Warn("temp file sweep failed", "err", err)
	} else if n > 0 {
		o.log.Info("removed leftover temp files", "count", n)
	}

	var stateMu sync.Mutex
	var wg sync.WaitGroup

	stateMu.Lock()
	o.reconcileWithDisk(run)
	run.RecomputeSummary()
	o.checkpointLocked(run)
	todo := make([]int, 0, len(run.Segments))
	for i := range run.Segments {
		seg := &run.Segments[i]
		if seg.Status == model.StatusSucceeded {
			o.obs.Observe(Event{Type: EventSkipped, Kind: seg.Kind, Index: seg.TypeIndex, Path: seg.OutputPath, Reason: seg.Reason, Summary: run.Summary})
			continue
		}
		todo = append(todo, i)
	}
	stateMu.Unlock()

	// update applies fn to segment i under the lock, refreshes the summary,
	// checkpoints and returns the summary snapshot.
	update := func(i int, fn func(seg *model.Segment) error) model.Summary {
		stateMu.Lock()
		defer stateMu.Unlock()
		if err := fn(&run.Segments[i]); err != nil {
			o.log.Error("segment update", "segment", run.Segments[i].Label(), "err", err)
		}
		run.RecomputeSummary()
		o.checkpointLocked(run)
		return run.Summary
	}

	for _, i := range todo {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o.runSegment(ctx, i, run, &stateMu, update)
		}(i)
	}
	wg.Wait()

	stateMu.Lock()
	defer stateMu.Unlock()
	run.RecomputeSummary()
	run.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	if err := o.layout.Persist(run); err != nil {
		return fmt.Errorf("write final manifest: %w", err)
	}
	o.log.Info("run finished",
		"narrations_ok", run.Summary.Narration.Succeeded, "narrations_failed", run.Summary.Narration.Failed,
		"images_ok", run.Summary.Image.Succeeded, "images_failed", run.Summary.Image.Failed)
	return ctx.Err()
}

func (o *Orchestrator) runSegment(ctx context.Context, i int, run *model.Run, stateMu *sync.Mutex, update func(int, func(*model.Segment) error) model.Summary) {
	stateMu.Lock()
	seg := run.Segments[i]
	stateMu.Unlock()

	logger := o.log.With("kind", seg.Kind, "index", seg.TypeIndex)

	if seg.Kind == model.KindNarration && strings.TrimSpace(seg.Text) == "" {
		sum := update(i, func(s *model.Segment) error {
			s.LastError = "narration text is empty"
			return model.TransitionSegmentStatus(s, model.StatusFailed, ReasonEmptyContent)
		})
		logger.Warn("segment failed", "reason", ReasonEmptyContent)
		o.obs.Observe(Event{Type: EventFailed, Kind: seg.Kind, Index: seg.TypeIndex, Reason: ReasonEmptyContent, Summary: sum})
		return
	}

	if err := ctx.Err(); err != nil {
		o.finishCanceled(i, seg, err, 0, update)
		return
	}

	target, call := o.taskFor(seg)
	sum := update(i, func(s *model.Segment) error {
		s.LastError = ""
		return model.TransitionSegmentStatus(s, model.StatusInProgress, "")
	})
	o.obs.Observe(Event{Type: EventStarted, Kind: seg.Kind, Index: seg.TypeIndex, Path: target, Summary: sum})

	sem := o.semaphoreFor(seg.Kind)
	attempts, err := o.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		defer func() { <-sem }()

		callCtx := ctx
		if o.opts.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, o.opts.CallTimeout)
			defer cancel()
		}
		logger.Debug("attempt", "attempt", attempt, "path", target)
		return call(callCtx, target)
	}, func(attempt int, err error, delay time.Duration) {
		logger.Warn("attempt failed, retrying", "attempt", attempt, "delay", delay.Round(time.Millisecond), "err", err)
		sum := update(i, func(s *model.Segment) error {
			s.Attempts = attempt + 1
			s.LastError = err.Error()
			return nil
		})
		o.obs.Observe(Event{Type: EventRetry, Kind: seg.Kind, Index: seg.TypeIndex, Attempt: attempt, Delay: delay, Err: err, Summary: sum})
	})

	switch {
	case err == nil:
		sum := update(i, func(s *model.Segment) error {
			s.Attempts = attempts
			s.LastError = ""
			s.OutputPath = target
			return model.TransitionSegmentStatus(s, model.StatusSucceeded, "")
		})
		logger.Info("segment succeeded", "attempts", attempts, "path", target)
		o.obs.Observe(Event{Type: EventSucceeded, Kind: seg.Kind, Index: seg.TypeIndex, Attempt: attempts - 1, Path: target, Summary: sum})
	case ctx.Err() != nil:
		o.finishCanceled(i, seg, err, attempts, update)
	default:
		reason := ReasonRetriesExhausted
		if retry.IsPermanent(err) {
			reason = ReasonPermanent
		}
		// A failed attempt must not leave anything at the deterministic path.
		_ = os.Remove(target)
		sum := update(i, func(s *model.Segment) error {
			s.Attempts = attempts
			s.LastError = err.Error()
			s.OutputPath = ""
			return model.TransitionSegmentStatus(s, model.StatusFailed, reason)
		})
		logger.Warn("segment failed", "attempts", attempts, "reason", reason, "err", err)
		o.obs.Observe(Event{Type: EventFailed, Kind: seg.Kind, Index: seg.TypeIndex, Attempt: attempts - 1, Reason: reason, Err: err, Summary: sum})
	}
}

func (o *Orchestrator) finishCanceled(i int, seg model.Segment, err error, attempts int, update func(int, func(*model.Segment) error) model.Summary) {
	sum := update(i, func(s *model.Segment) error {
		if attempts > 0 {
			s.Attempts = attempts
		}
		if err != nil {
			s.LastError = err.Error()
		}
		return model.TransitionSegmentStatus(s, model.StatusFailed, ReasonCanceled)
	})
	o.obs.Observe(Event{Type: EventFailed, Kind: seg.Kind, Index: seg.TypeIndex, Reason: ReasonCanceled, Err: err, Summary: sum})
}

type callFunc func(ctx context.Context, target string) error

func (o *Orchestrator) taskFor(seg model.Segment) (string, callFunc) {
	if seg.Kind == model.KindImagePrompt {
		target := o.layout.AssetPath(seg.Kind, seg.TypeIndex, o.backend.ImageFormat())
		prompt := ImagePrompt(seg.Text, o.opts.PromptSuffix)
		size := o.opts.ImageSize
		return target, func(ctx context.Context, target string) error {
			return o.backend.GenerateImage(ctx, prompt, target, size)
		}
	}
	target := o.layout.AssetPath(seg.Kind, seg.TypeIndex, o.backend.SpeechFormat())
	text := seg.Text
	return target, func(ctx context.Context, target string) error {
		return o.backend.GenerateSpeech(ctx, text, target)
	}
}

func (o *Orchestrator) semaphoreFor(kind model.Kind) chan struct{} {
	if kind == model.KindImagePrompt {
		return o.imageSem
	}
	return o.speechSem
}

// ImagePrompt appends suffix to description, dropping a trailing period
// from the description when the suffix starts with its own.
func ImagePrompt(description, suffix string) string {
	if suffix == "" {
		return description
	}
	if strings.HasPrefix(suffix, ".") {
		description = strings.TrimRight(description, ". ")
	}
	return description + suffix
}

// reconcileWithDisk brings segment statuses in line with the files that
// actually exist, so a resumed run regenerates only what is missing.
func (o *Orchestrator) reconcileWithDisk(run *model.Run) {
	for i := range run.Segments {
		seg := &run.Segments[i]
		path := o.expectedPath(*seg)
		exists := fileExists(path)

		switch {
		case seg.Status == model.StatusSucceeded && !exists:
			o.log.Warn("asset missing, regenerating", "segment", seg.Label(), "path", path)
			seg.OutputPath = ""
			_ = model.TransitionSegmentStatus(seg, model.StatusPending, "")
		case seg.Status == model.StatusSucceeded:
			seg.OutputPath = path
		case exists:
			seg.OutputPath = path
			seg.LastError = ""
			seg.Status = model.StatusPending
			_ = model.TransitionSegmentStatus(seg, model.StatusSucceeded, ReasonExistingAsset)
		default:
			// Failed and interrupted segments get a fresh set of attempts.
			seg.Status = model.StatusPending
			seg.Reason = ""
			seg.Attempts = 0
			seg.OutputPath = ""
		}
	}
}

func (o *Orchestrator) expectedPath(seg model.Segment) string {
	if seg.Kind == model.KindImagePrompt {
		return o.layout.AssetPath(seg.Kind, seg.TypeIndex, o.backend.ImageFormat())
	}
	return o.layout.AssetPath(seg.Kind, seg.TypeIndex, o.backend.SpeechFormat())
}

func (o *Orchestrator) checkpointLocked(run *model.Run) {
	if !o.opts.Checkpoint {
		return
	}
	if err := o.layout.Persist(run); err != nil {
		o.log.Warn("checkpoint failed", "err", err)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// WithObserver returns a copy of o that reports events to obs. The copy
// shares o's concurrency caps.
func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	cp := *o
	if obs == nil {
		obs = nopObserver{}
	}
	cp.obs = obs
	return &cp
}
