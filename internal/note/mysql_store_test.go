package note

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "slacknotes/internal/errors"
)

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &MySQLStore{db: db}, mock
}

func TestMySQLStoreSave(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	n := &Note{
		UserID:      "U123",
		Username:    "alice",
		Text:        "remember the demo",
		ChannelID:   "C456",
		ChannelName: "general",
		CreatedAt:   now,
	}

	mock.ExpectExec("INSERT INTO notes").
		WithArgs("U123", "alice", "remember the demo", "C456", "general", now).
		WillReturnResult(sqlmock.NewResult(42, 1))

	err := store.Save(ctx, n)

	assert.NoError(t, err)
	assert.Equal(t, int64(42), n.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreSaveWithoutChannel(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	n := &Note{UserID: "U123", Text: "a direct message note", CreatedAt: now}

	// Optional columns go in as NULL, matching rows written by earlier
	// deployments.
	mock.ExpectExec("INSERT INTO notes").
		WithArgs("U123", nil, "a direct message note", nil, nil, now).
		WillReturnResult(sqlmock.NewResult(7, 1))

	err := store.Save(ctx, n)

	assert.NoError(t, err)
	assert.Equal(t, int64(7), n.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "username", "note_text", "channel_id", "channel_name", "created_at"}).
			AddRow(1, "U123", "alice", "hello", "C456", "general", now)

		mock.ExpectQuery("SELECT (.+) FROM notes WHERE id = ?").
			WithArgs(int64(1)).
			WillReturnRows(rows)

		n, err := store.Get(ctx, 1)

		require.NoError(t, err)
		assert.Equal(t, "alice", n.Username)
		assert.Equal(t, "hello", n.Text)
		assert.True(t, n.CreatedAt.Equal(now))
	})

	t.Run("null columns", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "username", "note_text", "channel_id", "channel_name", "created_at"}).
			AddRow(2, "U123", nil, "bare note", nil, nil, now)

		mock.ExpectQuery("SELECT (.+) FROM notes WHERE id = ?").
			WithArgs(int64(2)).
			WillReturnRows(rows)

		n, err := store.Get(ctx, 2)

		require.NoError(t, err)
		assert.Empty(t, n.Username)
		assert.Empty(t, n.ChannelID)
		assert.Empty(t, n.ChannelName)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM notes WHERE id = ?").
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		n, err := store.Get(ctx, 99)

		assert.Nil(t, n)
		assert.True(t, errors.Is(err, ErrNoteNotFound))
	})
}

func TestMySQLStoreListAppliesFilters(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "username", "note_text", "channel_id", "channel_name", "created_at"}).
		AddRow(2, "U123", "alice", "second", "C1", "general", now).
		AddRow(1, "U123", "alice", "first", "C1", "general", now.Add(-time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM notes WHERE user_id = (.+) ORDER BY created_at DESC, id DESC LIMIT (.+) OFFSET").
		WithArgs("U123", 5, 0).
		WillReturnRows(rows)

	notes, err := store.List(ctx, buildListOptions([]ListOption{WithUser("U123"), WithLimit(5)}))

	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, int64(2), notes[0].ID)
	assert.Equal(t, "second", notes[0].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreListWithQueryFilter(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "user_id", "username", "note_text", "channel_id", "channel_name", "created_at"})

	mock.ExpectQuery("SELECT (.+) FROM notes WHERE (.+)note_text LIKE").
		WithArgs("%vendor%", "%vendor%", "%vendor%", 20, 0).
		WillReturnRows(rows)

	notes, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("vendor")}))

	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreStats(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	t.Run("aggregates", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"total", "users", "channels", "oldest", "newest"}).
			AddRow(3, 2, 1, 1700000000, 1700003600)

		mock.ExpectQuery("SELECT(.+)COUNT\\(\\*\\) AS total(.+)FROM notes").
			WillReturnRows(rows)

		stats, err := store.Stats(ctx, ListOptions{})

		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 2, stats.Users)
		assert.Equal(t, 1, stats.Channels)
		assert.Equal(t, int64(1700000000), stats.OldestCreatedAt)
		assert.Equal(t, int64(1700003600), stats.NewestCreatedAt)
	})

	t.Run("empty table", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"total", "users", "channels", "oldest", "newest"}).
			AddRow(0, 0, 0, 0, 0)

		mock.ExpectQuery("SELECT(.+)COUNT\\(\\*\\) AS total(.+)FROM notes").
			WillReturnRows(rows)

		stats, err := store.Stats(ctx, ListOptions{})

		require.NoError(t, err)
		assert.Zero(t, stats.Total)
		assert.Zero(t, stats.OldestCreatedAt)
		assert.Zero(t, stats.NewestCreatedAt)
	})
}

func TestMySQLStorePing(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectPing()
	assert.NoError(t, store.Ping(ctx))

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	err := store.Ping(ctx)
	assert.Error(t, err)
	assert.Equal(t, apperrors.CodeStorageFailure, apperrors.CodeOf(err))
}
