package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockcast/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func sampleResult() *models.ForecastResult {
	return &models.ForecastResult{
		ID:          uuid.New(),
		Symbol:      "TEST.NS",
		RequestedAt: time.Now(),
		HorizonDays: 7,
		Points: []models.ForecastPoint{
			{Date: time.Now().AddDate(0, 0, 1), Predicted: 101, LowerBound: 99, UpperBound: 103},
		},
		ModelTier:        models.TierLinearRegression,
		AccuracyEstimate: 0.9,
	}
}

func TestGateway_SaveForecast(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	result := sampleResult()
	mockPool.ExpectExec(`INSERT INTO forecast_records`).
		WithArgs(result.ID, result.Symbol, result.RequestedAt, result.HorizonDays,
			string(result.ModelTier), result.AccuracyEstimate, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gateway := NewGateway(mockPool, testLogger())
	gateway.SaveForecast(context.Background(), result)

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGateway_SaveForecast_SwallowsErrors(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec(`INSERT INTO forecast_records`).
		WillReturnError(errors.New("connection reset"))

	gateway := NewGateway(mockPool, testLogger())
	// Must not panic or surface the failure.
	gateway.SaveForecast(context.Background(), sampleResult())
}

func TestGateway_SaveHistory(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	result := sampleResult()
	mockPool.ExpectExec(`INSERT INTO prediction_history`).
		WithArgs("user-1", result.ID, result.Symbol, result.RequestedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gateway := NewGateway(mockPool, testLogger())
	gateway.SaveHistory(context.Background(), "user-1", result)

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestGateway_SaveHistory_AnonymousSkipped(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	gateway := NewGateway(mockPool, testLogger())
	gateway.SaveHistory(context.Background(), "", sampleResult())

	// No statement must reach the pool for anonymous requests.
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
