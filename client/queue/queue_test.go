package queue

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func mustOpenTestQueue(t *testing.T) *Queue {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	q, err := New(db)
	require.NoError(t, err)
	return q
}

func TestQueue_EnqueueAndDecodeRoundTrip(t *testing.T) {
	q := mustOpenTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, &CreateIssue{
		SiteID:      "site-1",
		Title:       "Schela nesigura",
		Description: "Lipsesc balustradele la etajul 2",
		Severity:    "high",
	}, []string{"/data/photos/a.jpg", "/data/photos/b.jpg"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, KindCreateIssue, items[0].Kind)

	m, err := items[0].Mutation()
	require.NoError(t, err)
	issue, ok := m.(*CreateIssue)
	require.True(t, ok)
	require.Equal(t, "Schela nesigura", issue.Title)

	refs, err := items[0].LocalPhotoRefs()
	require.NoError(t, err)
	require.Equal(t, []string{"/data/photos/a.jpg", "/data/photos/b.jpg"}, refs)
}

func TestQueue_PendingPreservesEnqueueOrder(t *testing.T) {
	q := mustOpenTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, &CreateIssue{SiteID: "site-1", Title: "primul"}, nil)
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, &CreateInspection{SiteID: "site-1", TemplateID: "tpl-1"}, nil)
	require.NoError(t, err)
	third, err := q.Enqueue(ctx, &ConfirmTraining{TrainingID: "tr-1", EmployeeID: "emp-1"}, nil)
	require.NoError(t, err)

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []string{first, second, third}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestQueue_RemoveOnSuccess(t *testing.T) {
	q := mustOpenTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, &CreateIssue{SiteID: "site-1", Title: "x"}, nil)
	require.NoError(t, err)
	require.NoError(t, q.Remove(ctx, id))

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestQueue_RetryCountOnlyIncreases(t *testing.T) {
	q := mustOpenTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, &CreateIssue{SiteID: "site-1", Title: "x"}, nil)
	require.NoError(t, err)

	state, err := q.IncrementRetry(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, state.Count)
	require.True(t, state.Retryable())

	state, err = q.IncrementRetry(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, state.Count)
	require.True(t, state.Retryable())
}

func TestQueue_DeadLetterAtCeiling(t *testing.T) {
	q := mustOpenTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, &CreateIssue{SiteID: "site-1", Title: "x"}, nil)
	require.NoError(t, err)

	var state RetryState
	for i := 0; i < MaxRetries; i++ {
		state, err = q.IncrementRetry(ctx, id)
		require.NoError(t, err)
	}
	require.True(t, state.DeadLettered())
	require.Equal(t, MaxRetries, state.Count)

	// Dead letters are retained and counted, but no longer drained.
	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, items)

	count, err := q.DeadLetterCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	dead, err := q.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, id, dead[0].ID)
}

func TestQueue_FailTwiceThenSucceedIsNotADeadLetter(t *testing.T) {
	q := mustOpenTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, &CreateIssue{SiteID: "site-1", Title: "x"}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = q.IncrementRetry(ctx, id)
		require.NoError(t, err)
	}
	require.NoError(t, q.Remove(ctx, id))

	count, err := q.DeadLetterCount(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestDecodeMutation_UnknownKind(t *testing.T) {
	_, err := DecodeMutation(Kind("delete_issue"), []byte(`{}`))
	require.Error(t, err)
}
