package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "wooden_dutch/errors"
)

func noop(context.Context) error { return nil }

func TestNew_Validates(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := New("0 8 * * 1,3,5", "Mars/Olympus", noop, logger)
	assert.True(t, perrors.Is(err, perrors.ErrConfig))

	_, err = New("every tuesday", "UTC", noop, logger)
	assert.True(t, perrors.Is(err, perrors.ErrConfig))

	_, err = New("0 8 * * 1,3,5", "UTC", nil, logger)
	assert.True(t, perrors.Is(err, perrors.ErrConfig))

	_, err = New("0 8 * * 1,3,5", "Australia/Sydney", noop, logger)
	assert.NoError(t, err)
}

func TestNext_UsesTimezone(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s, err := New("0 8 * * 1,3,5", "Australia/Sydney", noop, logger)
	require.NoError(t, err)

	// Tuesday 2026-10-20 12:00 UTC is 23:00 in Sydney, so the next slot is
	// Wednesday 08:00 local.
	from := time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	next := s.Next(from)
	assert.Equal(t, time.Wednesday, next.Weekday())
	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, "Australia/Sydney", next.Location().String())
}

func TestRun_StopsOnCancel(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s, err := New("0 8 * * 1,3,5", "UTC", noop, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "scheduler started" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestFire_LogsFailuresAndKeepsGoing(t *testing.T) {
	logger, hook := test.NewNullLogger()
	calls := 0
	s, err := New("@every 1h", "UTC", func(context.Context) error {
		calls++
		return errors.New("llm unavailable")
	}, logger)
	require.NoError(t, err)

	s.fire(context.Background())
	s.fire(context.Background())
	assert.Equal(t, 2, calls)

	failures := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "scheduled run failed" {
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}
