package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReindexer struct {
	err   error
	calls int
	done  chan struct{}
}

func (f *fakeReindexer) Reindex(ctx context.Context) error {
	f.calls++
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.err
}

type fakeRecorder struct {
	actions  []string
	affected []int64
	errs     []error
}

func (f *fakeRecorder) LogSystem(action string, affected int64, err error) {
	f.actions = append(f.actions, action)
	f.affected = append(f.affected, affected)
	f.errs = append(f.errs, err)
}

type fakeDeliverer struct {
	delivered []uint
	err       error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, mailID uint) error {
	f.delivered = append(f.delivered, mailID)
	return f.err
}

type fakeSweeper struct {
	cutoff time.Time
	count  int64
}

func (f *fakeSweeper) SweepExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.count, nil
}

type fakeCleaner struct {
	retention time.Duration
}

func (f *fakeCleaner) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return 3, nil
}

func TestReindexLibraryProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("records success", func(t *testing.T) {
		indexer := &fakeReindexer{}
		recorder := &fakeRecorder{}

		require.NoError(t, ReindexLibraryProcessor(indexer, recorder)(ctx, ReindexLibraryTask{}))
		assert.Equal(t, 1, indexer.calls)
		assert.Equal(t, []string{"reindex_library"}, recorder.actions)
		assert.Nil(t, recorder.errs[0])
	})

	t.Run("returns and records failure", func(t *testing.T) {
		indexer := &fakeReindexer{err: errors.New("disk full")}
		recorder := &fakeRecorder{}

		err := ReindexLibraryProcessor(indexer, recorder)(ctx, ReindexLibraryTask{})
		assert.ErrorContains(t, err, "disk full")
		assert.Error(t, recorder.errs[0])
	})
}

func TestSendActivationMailProcessor(t *testing.T) {
	ctx := context.Background()
	deliverer := &fakeDeliverer{}
	process := SendActivationMailProcessor(deliverer)

	require.NoError(t, process(ctx, SendActivationMailTask{MailID: 7}))
	assert.Equal(t, []uint{7}, deliverer.delivered)

	assert.Error(t, process(ctx, SendActivationMailTask{}))

	deliverer.err = errors.New("smtp down")
	assert.ErrorContains(t, process(ctx, SendActivationMailTask{MailID: 8}), "mail 8")
}

func TestSweepExpiredTokensProcessor(t *testing.T) {
	sweeper := &fakeSweeper{count: 2}
	recorder := &fakeRecorder{}

	before := time.Now().UTC()
	require.NoError(t, SweepExpiredTokensProcessor(sweeper, recorder)(context.Background(), SweepExpiredTokensTask{}))

	assert.WithinDuration(t, before.Add(-TokenGracePeriod), sweeper.cutoff, time.Second)
	assert.Equal(t, []int64{2}, recorder.affected)
}

func TestCleanupAuditEventsProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("uses retention days", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		recorder := &fakeRecorder{}
		require.NoError(t, CleanupAuditEventsProcessor(cleaner, recorder)(ctx, CleanupAuditEventsTask{RetentionDays: 7}))
		assert.Equal(t, 7*24*time.Hour, cleaner.retention)
		assert.Equal(t, []string{"cleanup_audit_events"}, recorder.actions)
		assert.Equal(t, []int64{3}, recorder.affected)
	})

	t.Run("defaults retention", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		require.NoError(t, CleanupAuditEventsProcessor(cleaner, nil)(ctx, CleanupAuditEventsTask{}))
		assert.Equal(t, DefaultAuditRetentionDays*24*time.Hour, cleaner.retention)
	})

	t.Run("requires cleaner", func(t *testing.T) {
		assert.Error(t, CleanupAuditEventsProcessor(nil, nil)(ctx, CleanupAuditEventsTask{}))
	})
}
