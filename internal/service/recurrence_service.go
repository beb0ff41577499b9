package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"todo-planner/internal/model"
	"todo-planner/internal/recurrence"
)

// RecurrenceStore is the slice of the task store the sweep needs.
type RecurrenceStore interface {
	ListCandidateRecurring(ctx context.Context, now time.Time, originsOnly bool) ([]model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	CreateGenerated(ctx context.Context, instance *model.Task, origin model.Task) error
}

// RecurrenceOptions tunes a RecurrenceService.
type RecurrenceOptions struct {
	// Workers bounds how many candidates are processed at once. 1 or less
	// processes them one after another.
	Workers int
	// TrackLastGenerated computes the next instance from the origin's
	// LastGeneratedAt and advances it together with each insert. Generated
	// instances are no longer candidates themselves. With it off, the origin's
	// own due date is the reference and repeated ticks before that date moves
	// produce duplicate instances.
	TrackLastGenerated bool
	// OnGenerated, when set, is called after each instance is stored.
	OnGenerated func(ctx context.Context, origin, instance model.Task)
}

// CandidateError records why a single candidate failed during a sweep.
type CandidateError struct {
	TaskID uint
	Err    error
}

func (e CandidateError) Error() string {
	return fmt.Sprintf("task %d: %v", e.TaskID, e.Err)
}

func (e CandidateError) Unwrap() error { return e.Err }

// SweepReport summarises one tick.
type SweepReport struct {
	RunID      string
	StartedAt  time.Time
	Candidates int
	Generated  int
	// Skipped counts candidates that were not due or carry an unknown pattern.
	Skipped   int
	Failed    int
	Instances []model.Task
	Errors    []CandidateError
}

// RecurrenceService spawns new instances of recurring tasks. It owns no timer;
// a driver calls RunOnce on whatever cadence it likes.
type RecurrenceService struct {
	store RecurrenceStore
	opts  RecurrenceOptions
	log   zerolog.Logger
}

func NewRecurrenceService(store RecurrenceStore, opts RecurrenceOptions, log zerolog.Logger) *RecurrenceService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &RecurrenceService{
		store: store,
		opts:  opts,
		log:   log.With().Str("component", "recurrence").Logger(),
	}
}

type candidateOutcome int

const (
	outcomeSkipped candidateOutcome = iota
	outcomeGenerated
	outcomeFailed
)

type candidateResult struct {
	outcome  candidateOutcome
	instance model.Task
	err      CandidateError
}

// RunOnce performs a single sweep at now. Only a failure to load the
// candidate set is returned as an error; per-candidate failures are logged
// and reported in SweepReport.Errors while the rest of the sweep carries on.
//
// Cancelling ctx stops new candidates from starting. Candidates already being
// written are allowed to finish.
func (s *RecurrenceService) RunOnce(ctx context.Context, now time.Time) (SweepReport, error) {
	report := SweepReport{RunID: uuid.NewString(), StartedAt: now}
	log := s.log.With().Str("run_id", report.RunID).Logger()

	candidates, err := s.store.ListCandidateRecurring(ctx, now, s.opts.TrackLastGenerated)
	if err != nil {
		log.Error().Err(err).Msg("load recurring candidates")
		return report, fmt.Errorf("load recurring candidates: %w", err)
	}
	report.Candidates = len(candidates)

	for _, res := range s.process(ctx, now, candidates, log) {
		switch res.outcome {
		case outcomeGenerated:
			report.Generated++
			report.Instances = append(report.Instances, res.instance)
		case outcomeFailed:
			report.Failed++
			report.Errors = append(report.Errors, res.err)
		default:
			report.Skipped++
		}
	}

	log.Info().
		Int("candidates", report.Candidates).
		Int("generated", report.Generated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("recurrence sweep finished")
	return report, nil
}

// process evaluates every candidate independently and returns the results in
// candidate order.
func (s *RecurrenceService) process(ctx context.Context, now time.Time, candidates []model.Task, log zerolog.Logger) []candidateResult {
	results := make([]candidateResult, len(candidates))

	if s.opts.Workers == 1 || len(candidates) < 2 {
		for i, task := range candidates {
			results[i] = s.processCandidate(ctx, now, task, log)
		}
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.opts.Workers && w < len(candidates); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// Each worker writes only its own slot.
				results[i] = s.processCandidate(ctx, now, candidates[i], log)
			}
		}()
	}
	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (s *RecurrenceService) processCandidate(ctx context.Context, now time.Time, origin model.Task, log zerolog.Logger) (res candidateResult) {
	taskLog := log.With().Uint("task_id", origin.ID).Uint("user_id", origin.UserID).Logger()
	fail := func(err error, msg string) candidateResult {
		taskLog.Error().Err(err).Msg(msg)
		return candidateResult{outcome: outcomeFailed, err: CandidateError{TaskID: origin.ID, Err: err}}
	}

	defer func() {
		if r := recover(); r != nil {
			res = fail(fmt.Errorf("panic: %v", r), "recurrence candidate panicked")
		}
	}()

	if err := ctx.Err(); err != nil {
		return fail(err, "sweep cancelled before candidate")
	}

	decision, err := recurrence.Evaluate(origin, now, s.opts.TrackLastGenerated)
	switch {
	case errors.Is(err, recurrence.ErrUnknownPattern):
		taskLog.Debug().Str("pattern", origin.RecurrencePattern).Msg("unknown recurrence pattern, task is inert")
		return candidateResult{outcome: outcomeSkipped}
	case err != nil:
		return fail(err, "cannot evaluate recurring task")
	case !decision.Due:
		return candidateResult{outcome: outcomeSkipped}
	}

	instance := recurrence.NewInstance(origin, decision.Next)
	if s.opts.TrackLastGenerated {
		err = s.store.CreateGenerated(ctx, &instance, origin)
	} else {
		err = s.store.Create(ctx, &instance)
	}
	if err != nil {
		return fail(err, "store generated instance")
	}

	taskLog.Info().
		Uint("instance_id", instance.ID).
		Str("pattern", decision.Pattern.String()).
		Time("due_date", decision.Next).
		Msg("recurring instance generated")

	if s.opts.OnGenerated != nil {
		s.runHook(ctx, origin, instance, taskLog)
	}
	return candidateResult{outcome: outcomeGenerated, instance: instance}
}

// runHook calls OnGenerated for an instance that is already stored. A panic
// in the hook is logged and does not change the candidate's outcome.
func (s *RecurrenceService) runHook(ctx context.Context, origin, instance model.Task, log zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Uint("instance_id", instance.ID).Msg("generated hook panicked")
		}
	}()
	s.opts.OnGenerated(ctx, origin, instance)
}
