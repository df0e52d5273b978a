// Package worker runs isolated compute tasks outside the request path.
// A long-running fit must never block the request-handling goroutines, so
// jobs execute in a spawned process speaking JSON over stdin/stdout. The
// submit/await split keeps the orchestration independent of whether the
// runner is a subprocess, a thread pool, or a remote job queue.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one unit of isolated work. Name selects the worker operation;
// Payload is serialized to the worker's stdin.
type Job struct {
	Name    string
	Payload interface{}
}

// Error wraps a worker crash or unparseable output.
type Error struct {
	Job    string
	Output string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("worker job %q failed", e.Job)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += " (output: " + e.Output + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Handle tracks one submitted job until its result is consumed.
type Handle struct {
	job  string
	done chan struct{}
	out  json.RawMessage
	err  error
}

// Await blocks until the job finishes or ctx is cancelled, then decodes the
// worker's JSON output into result.
func (h *Handle) Await(ctx context.Context, result interface{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
	}
	if h.err != nil {
		return h.err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(h.out, result); err != nil {
		return &Error{Job: h.job, Output: truncate(string(h.out)), Err: err}
	}
	return nil
}

// Submitter accepts isolated compute jobs.
type Submitter interface {
	Submit(ctx context.Context, job Job) (*Handle, error)
}

// ProcessRunner executes each job as a child process. The job name is passed
// as the final argument and the payload is written to stdin; the worker
// writes a single JSON document to stdout and exits.
type ProcessRunner struct {
	Command string
	Args    []string
	Timeout time.Duration
	Logger  *logrus.Logger
}

func NewProcessRunner(command string, args []string, timeout time.Duration, logger *logrus.Logger) *ProcessRunner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &ProcessRunner{Command: command, Args: args, Timeout: timeout, Logger: logger}
}

// Submit launches the job and returns immediately with a handle.
func (r *ProcessRunner) Submit(ctx context.Context, job Job) (*Handle, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for job %q: %w", job.Name, err)
	}

	h := &Handle{job: job.Name, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.out, h.err = r.run(ctx, job.Name, payload)
	}()
	return h, nil
}

func (r *ProcessRunner) run(ctx context.Context, name string, payload []byte) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	args := append(append([]string{}, r.Args...), name)
	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.WithFields(logrus.Fields{"job": name, "command": r.Command}).Debug("Starting worker process")
	start := time.Now()
	err := cmd.Run()
	r.Logger.WithFields(logrus.Fields{"job": name, "duration": time.Since(start).String()}).Debug("Worker process finished")

	if err != nil {
		return nil, &Error{Job: name, Output: truncate(stderr.String()), Err: err}
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if !json.Valid(out) {
		return nil, &Error{Job: name, Output: truncate(string(out)), Err: fmt.Errorf("worker output is not valid JSON")}
	}
	return out, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
