// Package modelstore is the durable registry of previously fitted per-symbol
// models. Metadata lives in PostgreSQL; the fitted parameters are opaque
// artifacts owned by the worker runtime. Training and prediction both
// delegate to an isolated worker so a long fit never blocks the request
// path, and the request path stays stateless between calls.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"stockcast/internal/models"
	"stockcast/internal/worker"
)

// ErrNoTrainedModel is the expected state of a symbol that was never
// trained; it is not a fault.
var ErrNoTrainedModel = errors.New("no trained model for symbol")

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// TrainOptions mirrors the tunables accepted by the training endpoint.
type TrainOptions struct {
	Period         string  `json:"period"`
	Epochs         int     `json:"epochs"`
	SequenceLength int     `json:"sequenceLength"`
	TestSize       float64 `json:"testSize"`
}

func (o *TrainOptions) applyDefaults() {
	if o.Period == "" {
		o.Period = "2y"
	}
	if o.Epochs <= 0 {
		o.Epochs = 50
	}
	if o.SequenceLength <= 0 {
		o.SequenceLength = 60
	}
	if o.TestSize <= 0 || o.TestSize >= 1 {
		o.TestSize = 0.2
	}
}

// Store bridges the trained-model registry and the worker runtime.
type Store struct {
	pool     DatabasePool
	runner   worker.Submitter
	modelDir string
	logger   *logrus.Logger
}

func NewStore(pool DatabasePool, runner worker.Submitter, modelDir string, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{pool: pool, runner: runner, modelDir: modelDir, logger: logger}
}

// HasModel reports whether a fitted model exists for the symbol.
func (s *Store) HasModel(ctx context.Context, symbol string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM trained_models WHERE symbol = $1)`, symbol,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check trained model for %s: %w", symbol, err)
	}
	return exists, nil
}

// GetModel returns the record for a symbol, or ErrNoTrainedModel.
func (s *Store) GetModel(ctx context.Context, symbol string) (*models.TrainedModelRecord, error) {
	var record models.TrainedModelRecord
	err := s.pool.QueryRow(ctx,
		`SELECT symbol, fitted_at, window_length, validation_error
		 FROM trained_models WHERE symbol = $1`, symbol,
	).Scan(&record.Symbol, &record.FittedAt, &record.WindowLength, &record.ValidationError)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTrainedModel
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trained model for %s: %w", symbol, err)
	}
	return &record, nil
}

// ListModels returns all trained model records, newest first.
func (s *Store) ListModels(ctx context.Context) ([]models.TrainedModelRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, fitted_at, window_length, validation_error
		 FROM trained_models ORDER BY fitted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trained models: %w", err)
	}
	defer rows.Close()

	var records []models.TrainedModelRecord
	for rows.Next() {
		var record models.TrainedModelRecord
		if err := rows.Scan(&record.Symbol, &record.FittedAt, &record.WindowLength, &record.ValidationError); err != nil {
			return nil, fmt.Errorf("failed to scan trained model row: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteModel removes the registry row and asks the worker to remove the
// on-disk artifacts. Returns false when nothing was deleted.
func (s *Store) DeleteModel(ctx context.Context, symbol string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trained_models WHERE symbol = $1`, symbol)
	if err != nil {
		return false, fmt.Errorf("failed to delete trained model for %s: %w", symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	// Artifact cleanup is best-effort; the registry row is authoritative.
	if handle, err := s.runner.Submit(ctx, worker.Job{
		Name:    "delete",
		Payload: map[string]interface{}{"symbol": symbol, "modelDir": s.modelDir},
	}); err == nil {
		if err := handle.Await(ctx, nil); err != nil {
			s.logger.Warnf("Failed to remove model artifacts for %s: %v", symbol, err)
		}
	}
	return true, nil
}

type trainResponse struct {
	WindowLength    int     `json:"windowLength"`
	ValidationError float64 `json:"validationError"`
}

// Train fits a new model for the symbol in an isolated worker process and
// upserts the registry record. Worker failures are surfaced verbatim:
// training is an intentional, observable operation.
func (s *Store) Train(ctx context.Context, symbol string, opts TrainOptions) (*models.TrainedModelRecord, error) {
	opts.applyDefaults()

	// The fit runs detached from the caller's context: a client that gives
	// up on the request must not kill a training run mid-fit. Await below
	// still honors the caller's deadline; an abandoned run just finishes
	// with its result discarded.
	handle, err := s.runner.Submit(context.WithoutCancel(ctx), worker.Job{
		Name: "train",
		Payload: map[string]interface{}{
			"symbol":         symbol,
			"period":         opts.Period,
			"epochs":         opts.Epochs,
			"sequenceLength": opts.SequenceLength,
			"testSize":       opts.TestSize,
			"modelDir":       s.modelDir,
		},
	})
	if err != nil {
		return nil, err
	}

	var resp trainResponse
	if err := handle.Await(ctx, &resp); err != nil {
		return nil, err
	}

	record := &models.TrainedModelRecord{
		Symbol:          symbol,
		FittedAt:        time.Now(),
		WindowLength:    resp.WindowLength,
		ValidationError: resp.ValidationError,
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO trained_models (symbol, fitted_at, window_length, validation_error)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (symbol) DO UPDATE SET
			fitted_at = EXCLUDED.fitted_at,
			window_length = EXCLUDED.window_length,
			validation_error = EXCLUDED.validation_error`,
		record.Symbol, record.FittedAt, record.WindowLength, record.ValidationError)
	if err != nil {
		return nil, fmt.Errorf("failed to persist trained model for %s: %w", symbol, err)
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":           symbol,
		"window_length":    record.WindowLength,
		"validation_error": record.ValidationError,
	}).Info("Trained model registered")
	return record, nil
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// Predict invokes the fitted model through a worker process. Each call is a
// fresh worker invocation; the model is never loaded in-process.
func (s *Store) Predict(ctx context.Context, symbol string, days int) ([]float64, error) {
	exists, err := s.HasModel(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNoTrainedModel
	}

	handle, err := s.runner.Submit(ctx, worker.Job{
		Name: "predict",
		Payload: map[string]interface{}{
			"symbol":   symbol,
			"days":     days,
			"modelDir": s.modelDir,
		},
	})
	if err != nil {
		return nil, err
	}

	var resp predictResponse
	if err := handle.Await(ctx, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 {
		return nil, &worker.Error{Job: "predict", Err: errors.New("worker returned no predictions")}
	}
	return resp.Predictions, nil
}
