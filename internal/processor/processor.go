// Package processor drives a stored statement through the pipeline and
// records the outcome.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/pipeline"
	"github.com/insightdelivered/statement-reconciler/internal/store"
	"github.com/insightdelivered/statement-reconciler/internal/worker"
)

// Processor moves statements through
// pending → processing → completed → validated | failed.
type Processor struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	log      zerolog.Logger
	now      func() time.Time
}

func New(st store.Store, p *pipeline.Pipeline, log zerolog.Logger) *Processor {
	return &Processor{store: st, pipeline: p, log: log, now: time.Now}
}

// Handle adapts Process to the worker pool. Errors that another attempt
// cannot fix are marked permanent.
func (p *Processor) Handle(ctx context.Context, job *worker.Job) error {
	err := p.Process(ctx, job.StatementID)
	if err == nil {
		return nil
	}
	var se *models.SourceError
	if errors.Is(err, models.ErrNotFound) || (models.IsFatal(err) && !errors.As(err, &se)) {
		return worker.Permanent(err)
	}
	return err
}

// Process runs the pipeline for a statement and persists its transactions
// and verdict. A returned error means the statement is FAILED.
func (p *Processor) Process(ctx context.Context, id uint64) error {
	s, err := p.store.GetStatement(id)
	if err != nil {
		return err
	}
	log := p.log.With().Uint64("statement_id", id).Str("file", s.FileName).Logger()

	s.Status = models.StatementProcessing
	s.ErrorMessage = ""
	if err := p.store.UpdateStatement(s); err != nil {
		return err
	}

	res, err := p.pipeline.Process(ctx, s.FilePath, s.BankHint)
	if err != nil {
		log.Error().Err(err).Bool("fatal", models.IsFatal(err)).Msg("processing failed")
		return p.fail(s, err)
	}

	s.Status = models.StatementCompleted
	s.Format = res.Format
	s.Metadata = res.Metadata
	s.ExtractionMethod = res.Method
	s.ParserUsed = res.ParserUsed
	s.TransactionCount = len(res.Validation.Transactions)
	if err := p.store.UpdateStatement(s); err != nil {
		return err
	}

	// a retry must not append to an earlier attempt's rows
	if err := p.store.DeleteTransactions(id); err != nil {
		return p.fail(s, err)
	}
	if err := p.store.CreateTransactions(id, res.Validation.Transactions); err != nil {
		return p.fail(s, err)
	}

	if err := p.record(s, res.Validation); err != nil {
		return err
	}
	log.Info().
		Str("status", string(s.Status)).
		Int("transactions", s.TransactionCount).
		Int("errors", len(s.Errors)).
		Int("warnings", len(s.Warnings)).
		Msg("statement processed")
	return nil
}

// Verify re-runs validation over the stored transactions.
func (p *Processor) Verify(ctx context.Context, id uint64) (models.ValidationResult, error) {
	s, err := p.store.GetStatement(id)
	if err != nil {
		return models.ValidationResult{}, err
	}
	txns, err := p.store.Transactions(id)
	if err != nil {
		return models.ValidationResult{}, err
	}

	res := p.pipeline.Validate(s.Metadata, txns)
	if err := p.store.UpdateTransactions(id, res.Transactions); err != nil {
		return models.ValidationResult{}, fmt.Errorf("saving validation: %w", err)
	}
	if err := p.record(s, res); err != nil {
		return models.ValidationResult{}, err
	}
	return res, nil
}

// Verified returns the statement's transactions that passed validation, the
// only ones handed to export.
func (p *Processor) Verified(id uint64) ([]models.Transaction, error) {
	txns, err := p.store.Transactions(id)
	if err != nil {
		return nil, err
	}
	out := txns[:0]
	for _, t := range txns {
		if t.ValidationStatus == models.StatusVerified {
			out = append(out, t)
		}
	}
	return out, nil
}

// Resume submits statements left pending or processing by an earlier run.
func (p *Processor) Resume(ctx context.Context, submit func(ctx context.Context, id uint64) (string, error)) (int, error) {
	statements, err := p.store.ListStatements()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range statements {
		if s.Status != models.StatementPending && s.Status != models.StatementProcessing {
			continue
		}
		if _, err := submit(ctx, s.ID); err != nil {
			return n, fmt.Errorf("resuming statement %d: %w", s.ID, err)
		}
		n++
	}
	return n, nil
}

func (p *Processor) record(s *models.Statement, res models.ValidationResult) error {
	now := p.now().UTC()
	s.IsValid = res.IsValid
	s.Errors = res.Errors
	s.Warnings = res.Warnings
	s.ProcessedAt = &now
	if res.IsValid {
		s.Status = models.StatementValidated
		s.ErrorMessage = ""
	} else {
		s.Status = models.StatementFailed
		s.ErrorMessage = fmt.Sprintf("validation failed with %d errors", len(res.Errors))
	}
	return p.store.UpdateStatement(s)
}

func (p *Processor) fail(s *models.Statement, cause error) error {
	s.Status = models.StatementFailed
	s.ErrorMessage = cause.Error()
	s.RetryCount++
	if err := p.store.UpdateStatement(s); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
