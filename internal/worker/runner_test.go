package worker

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// shRunner runs a shell snippet as the worker. The job name arrives as the
// final argument, which sh -c binds to $0.
func shRunner(script string) *ProcessRunner {
	return NewProcessRunner("sh", []string{"-c", script}, time.Minute, testLogger())
}

func TestProcessRunner_Success(t *testing.T) {
	runner := shRunner(`cat > /dev/null; echo '{"value": 42}'`)

	handle, err := runner.Submit(context.Background(), Job{
		Name:    "train",
		Payload: map[string]interface{}{"symbol": "TEST.NS"},
	})
	require.NoError(t, err)

	var result struct {
		Value int `json:"value"`
	}
	require.NoError(t, handle.Await(context.Background(), &result))
	assert.Equal(t, 42, result.Value)
}

func TestProcessRunner_JobNameIsFinalArg(t *testing.T) {
	runner := shRunner(`cat > /dev/null; printf '{"job": "%s"}' "$0"`)

	handle, err := runner.Submit(context.Background(), Job{Name: "predict", Payload: nil})
	require.NoError(t, err)

	var result struct {
		Job string `json:"job"`
	}
	require.NoError(t, handle.Await(context.Background(), &result))
	assert.Equal(t, "predict", result.Job)
}

func TestProcessRunner_PayloadOnStdin(t *testing.T) {
	// Echo stdin straight back.
	runner := shRunner(`cat`)

	handle, err := runner.Submit(context.Background(), Job{
		Name:    "train",
		Payload: map[string]interface{}{"symbol": "TEST.NS", "epochs": 50},
	})
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, handle.Await(context.Background(), &result))
	assert.Equal(t, "TEST.NS", result["symbol"])
}

func TestProcessRunner_CrashCapturesStderr(t *testing.T) {
	runner := shRunner(`cat > /dev/null; echo "model file missing" >&2; exit 3`)

	handle, err := runner.Submit(context.Background(), Job{Name: "predict", Payload: nil})
	require.NoError(t, err)

	err = handle.Await(context.Background(), nil)
	require.Error(t, err)

	var workerErr *Error
	require.ErrorAs(t, err, &workerErr)
	assert.Equal(t, "predict", workerErr.Job)
	assert.Contains(t, workerErr.Output, "model file missing")
}

func TestProcessRunner_InvalidJSONOutput(t *testing.T) {
	runner := shRunner(`cat > /dev/null; echo "not json"`)

	handle, err := runner.Submit(context.Background(), Job{Name: "train", Payload: nil})
	require.NoError(t, err)

	err = handle.Await(context.Background(), nil)
	var workerErr *Error
	require.ErrorAs(t, err, &workerErr)
	assert.Contains(t, workerErr.Output, "not json")
}

func TestProcessRunner_AwaitCancellation(t *testing.T) {
	runner := shRunner(`sleep 30`)

	handle, err := runner.Submit(context.Background(), Job{Name: "train", Payload: nil})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, handle.Await(ctx, nil), context.DeadlineExceeded)
}

func TestProcessRunner_Timeout(t *testing.T) {
	runner := NewProcessRunner("sh", []string{"-c", "sleep 30"}, 100*time.Millisecond, testLogger())

	handle, err := runner.Submit(context.Background(), Job{Name: "train", Payload: nil})
	require.NoError(t, err)

	err = handle.Await(context.Background(), nil)
	var workerErr *Error
	require.ErrorAs(t, err, &workerErr)
}

func TestError_Message(t *testing.T) {
	err := &Error{Job: "train", Output: "boom", Err: assert.AnError}
	assert.Contains(t, err.Error(), `worker job "train" failed`)
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, assert.AnError)
}
