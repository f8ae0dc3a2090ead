package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/listener/notification"
)

func startedTracker(t *testing.T, progressEvery int) (*Tracker, *memSessionRepo, *recordingNotifier) {
	t.Helper()
	repo := newMemSessionRepo()
	events := &recordingNotifier{}
	tr := NewTracker(repo, events, progressEvery)
	require.NoError(t, tr.Start(context.Background(), "s1", 4, 70, 85))
	require.NoError(t, tr.Begin(context.Background()))
	return tr, repo, events
}

func TestTracker_StartPersistsInitialSession(t *testing.T) {
	tr, repo, events := startedTracker(t, 1)

	stored, err := repo.FindSessionByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, stored.Status)
	assert.Equal(t, 4, stored.TotalSteps)
	assert.Equal(t, 70, stored.ConfidenceThreshold)
	assert.Equal(t, 85, stored.HighThreshold)
	assert.Equal(t, stored.Version, tr.Snapshot().Version)

	got := events.all()
	require.Len(t, got, 2)
	assert.Equal(t, model.SessionInitializing, got[0].Status)
	assert.Equal(t, model.SessionRunning, got[1].Status)
}

func TestTracker_StartResetsFinishedSession(t *testing.T) {
	ctx := context.Background()
	tr, repo, _ := startedTracker(t, 1)
	require.NoError(t, tr.AddCounters(ctx, model.Counters{ProductsScanned: 5}))
	require.NoError(t, tr.Complete(ctx, &model.SessionSummary{MatchesFound: 1}))

	again := NewTracker(repo, nil, 1)
	require.NoError(t, again.Start(ctx, "s1", 4, 60, 85))

	stored, err := repo.FindSessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionInitializing, stored.Status)
	assert.Zero(t, stored.Counters.ProductsScanned)
	assert.Nil(t, stored.Summary)
	assert.Equal(t, 60, stored.ConfidenceThreshold)
}

func TestTracker_RestartIsAnnounced(t *testing.T) {
	ctx := context.Background()
	tr, repo, _ := startedTracker(t, 1)
	first := tr.Snapshot().StartedAt
	require.NoError(t, tr.Complete(ctx, nil))

	events := &recordingNotifier{}
	again := NewTracker(repo, events, 1)
	again.now = func() time.Time { return first.Add(time.Minute) }
	require.NoError(t, again.Start(ctx, "s1", 4, 70, 85))

	got := events.all()
	require.Len(t, got, 1)
	assert.Equal(t, notification.EventRestarted, got[0].Type)
	assert.False(t, got[0].Type.IsTerminal())
	assert.Zero(t, got[0].Progress)
	assert.True(t, first.Add(time.Minute).Equal(got[0].StartedAt))
	assert.Contains(t, got[0].Message, "complete")
}

func TestTracker_Resume(t *testing.T) {
	ctx := context.Background()

	t.Run("adopts an initializing session", func(t *testing.T) {
		repo := newMemSessionRepo()
		require.NoError(t, NewTracker(repo, nil, 1).Start(ctx, "s1", 4, 70, 85))

		tr := NewTracker(repo, nil, 1)
		require.NoError(t, tr.Resume(ctx, "s1"))
		require.NoError(t, tr.Begin(ctx))
		stored, err := repo.FindSessionByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, model.SessionRunning, stored.Status)
	})

	t.Run("reports a cancelled session", func(t *testing.T) {
		repo := newMemSessionRepo()
		require.NoError(t, NewTracker(repo, nil, 1).Start(ctx, "s1", 4, 70, 85))
		_, err := repo.MarkSessionError(ctx, "s1", CancelledMessage)
		require.NoError(t, err)

		tr := NewTracker(repo, nil, 1)
		assert.ErrorIs(t, tr.Resume(ctx, "s1"), ErrCancelled)
		assert.ErrorIs(t, tr.Begin(ctx), ErrCancelled)
	})

	t.Run("refuses a running session", func(t *testing.T) {
		_, repo, _ := startedTracker(t, 1)
		tr := NewTracker(repo, nil, 1)
		assert.Error(t, tr.Resume(ctx, "s1"))
		assert.Nil(t, tr.Snapshot())
	})

	t.Run("unknown session", func(t *testing.T) {
		tr := NewTracker(newMemSessionRepo(), nil, 1)
		assert.ErrorIs(t, tr.Resume(ctx, "nope"), repository.ErrSessionNotFound)
	})
}

func TestTracker_ProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := startedTracker(t, 1)

	require.NoError(t, tr.Advance(ctx, 1, "second"))
	assert.InDelta(t, 25.0, tr.Snapshot().ProgressPercent, 0.001)

	require.NoError(t, tr.UpdateProgress(ctx, 1, 50))
	assert.InDelta(t, 37.5, tr.Snapshot().ProgressPercent, 0.001)

	require.NoError(t, tr.UpdateProgress(ctx, 1, 10))
	assert.InDelta(t, 37.5, tr.Snapshot().ProgressPercent, 0.001)

	require.NoError(t, tr.Advance(ctx, 0, "first"))
	assert.InDelta(t, 37.5, tr.Snapshot().ProgressPercent, 0.001)

	require.NoError(t, tr.UpdateProgress(ctx, 3, 250))
	assert.InDelta(t, 100.0, tr.Snapshot().ProgressPercent, 0.001)
}

func TestTracker_ItemProgressIsThrottled(t *testing.T) {
	ctx := context.Background()
	tr, repo, _ := startedTracker(t, 10)
	require.NoError(t, tr.Advance(ctx, 0, "write"))
	base := repo.updateCount()

	for i := 1; i <= 25; i++ {
		require.NoError(t, tr.ItemProgress(ctx, 0, i, 25, model.Counters{DirectLinksCreated: 1}))
	}
	// Items 10, 20 and the last one are persisted.
	assert.Equal(t, base+3, repo.updateCount())

	stored, err := repo.FindSessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), stored.Counters.DirectLinksCreated)
	assert.InDelta(t, 25.0, stored.ProgressPercent, 0.001)

	// A new step restarts the throttle window.
	require.NoError(t, tr.Advance(ctx, 1, "next"))
	base = repo.updateCount()
	require.NoError(t, tr.ItemProgress(ctx, 1, 5, 100, model.Counters{}))
	assert.Equal(t, base, repo.updateCount())
}

func TestTracker_AppendError(t *testing.T) {
	ctx := context.Background()
	tr, repo, events := startedTracker(t, 1)

	require.NoError(t, tr.AppendError(ctx, "write", "boom"))
	require.NoError(t, tr.AppendError(ctx, "write", "again"))

	stored, err := repo.FindSessionByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.FailureList{"write: boom", "write: again"}, stored.Errors)
	assert.Equal(t, []string{"boom", "again"}, stored.StepErrors["write"])

	last := events.all()[len(events.all())-1]
	assert.Equal(t, notification.EventLog, last.Type)
	assert.Equal(t, "write: again", last.Message)
}

func TestTracker_CompleteAndFail(t *testing.T) {
	ctx := context.Background()

	t.Run("complete", func(t *testing.T) {
		tr, repo, events := startedTracker(t, 1)
		require.NoError(t, tr.Complete(ctx, &model.SessionSummary{MatchesFound: 3}))

		stored, err := repo.FindSessionByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, model.SessionComplete, stored.Status)
		assert.Equal(t, 100.0, stored.ProgressPercent)
		require.NotNil(t, stored.CompletedAt)
		require.NotNil(t, stored.Summary)
		assert.Equal(t, 3, stored.Summary.MatchesFound)

		got := events.all()
		assert.Equal(t, notification.EventComplete, got[len(got)-1].Type)
	})

	t.Run("fail", func(t *testing.T) {
		tr, repo, events := startedTracker(t, 1)
		require.NoError(t, tr.Fail(ctx, errors.New("catalog unavailable")))

		stored, err := repo.FindSessionByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, model.SessionError, stored.Status)
		assert.Contains(t, stored.Errors, "catalog unavailable")

		got := events.all()
		assert.Equal(t, notification.EventError, got[len(got)-1].Type)
	})
}

func TestTracker_DetectsOutOfBandCancellation(t *testing.T) {
	ctx := context.Background()

	t.Run("on the next write", func(t *testing.T) {
		tr, repo, events := startedTracker(t, 1)
		require.NoError(t, tr.AddCounters(ctx, model.Counters{ImagesScanned: 7}))

		ok, err := repo.MarkSessionError(ctx, "s1", CancelledMessage)
		require.NoError(t, err)
		require.True(t, ok)

		err = tr.AddCounters(ctx, model.Counters{ImagesScanned: 1})
		assert.ErrorIs(t, err, ErrCancelled)

		// Further writes are refused and the stored error status is kept.
		assert.ErrorIs(t, tr.UpdateProgress(ctx, 2, 10), ErrCancelled)
		require.NoError(t, tr.Fail(ctx, errors.New(CancelledMessage)))

		stored, err := repo.FindSessionByID(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, model.SessionError, stored.Status)
		assert.Equal(t, int64(7), stored.Counters.ImagesScanned)
		assert.Equal(t, model.FailureList{CancelledMessage}, stored.Errors)

		got := events.all()
		assert.Equal(t, notification.EventError, got[len(got)-1].Type)
		assert.Equal(t, CancelledMessage, got[len(got)-1].Message)
	})

	t.Run("by polling", func(t *testing.T) {
		tr, repo, _ := startedTracker(t, 1)
		cancelled, err := tr.IsCancelled(ctx)
		require.NoError(t, err)
		assert.False(t, cancelled)

		_, err = repo.MarkSessionError(ctx, "s1", CancelledMessage)
		require.NoError(t, err)

		cancelled, err = tr.IsCancelled(ctx)
		require.NoError(t, err)
		assert.True(t, cancelled)
		assert.Equal(t, model.SessionError, tr.Snapshot().Status)
	})
}

func TestTracker_NotStarted(t *testing.T) {
	tr := NewTracker(newMemSessionRepo(), nil, 1)
	assert.Nil(t, tr.Snapshot())
	assert.Error(t, tr.Begin(context.Background()))
	_, err := tr.IsCancelled(context.Background())
	assert.Error(t, err)
}
