package background

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"findixi/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	runs atomic.Int32
	err  error
}

func (r *countingRefresher) Run(ctx context.Context) (*services.SweepResult, error) {
	r.runs.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &services.SweepResult{Total: 1, Failed: 1, Failures: []services.SweepFailure{{MerchantID: 1, Error: "x"}}}, nil
}

func TestJobScheduler_RunsSweepImmediatelyAndRepeats(t *testing.T) {
	refresher := &countingRefresher{}
	js, err := NewJobScheduler(refresher, 50*time.Millisecond)
	require.NoError(t, err)

	js.Start()
	defer func() { require.NoError(t, js.Stop()) }()

	assert.Eventually(t, func() bool { return refresher.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	next, err := js.NextRun(tokenRefreshJob)
	require.NoError(t, err)
	assert.False(t, next.IsZero())
}

func TestJobScheduler_SweepErrorKeepsScheduling(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("db down")}
	js, err := NewJobScheduler(refresher, 50*time.Millisecond)
	require.NoError(t, err)

	js.Start()
	defer func() { require.NoError(t, js.Stop()) }()

	assert.Eventually(t, func() bool { return refresher.runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestJobScheduler_Validation(t *testing.T) {
	_, err := NewJobScheduler(&countingRefresher{}, 0)
	assert.Error(t, err)

	js, err := NewJobScheduler(&countingRefresher{}, time.Hour)
	require.NoError(t, err)
	defer func() { _ = js.Stop() }()
	_, err = js.NextRun("missing")
	assert.Error(t, err)
}
