package cron_test

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/infra/cron"
)

type countingJob struct {
	runs atomic.Int32
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return nil
}

func TestSchedulerRunsJobs(t *testing.T) {
	s := cron.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	job := &countingJob{}
	require.NoError(t, s.Register("@every 1s", job))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := cron.New(nil)
	assert.Error(t, s.Register("not a spec", &countingJob{}))
}
