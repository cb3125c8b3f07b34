package note

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	apperrors "slacknotes/internal/errors"
)

// MySQLConfig carries everything needed to reach the notes database.
type MySQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// EnableTracing wraps the driver so every query becomes a span.
	EnableTracing bool
}

func (c MySQLConfig) dsn() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// MySQLStore persists notes in MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects, applies pending migrations and returns the store.
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.Database) == "" || strings.TrimSpace(cfg.User) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "mysql host, database and user are required")
	}

	driverName := "mysql"
	if cfg.EnableTracing {
		registered, err := otelsql.Register("mysql",
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSQLCommenter(true),
		)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInitializationFailure, err, "register traced mysql driver")
		}
		driverName = registered
	}

	db, err := sql.Open(driverName, cfg.dsn())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "open mysql connection")
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 10 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "mysql is unreachable")
	}

	store := &MySQLStore{db: db}
	if err := store.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "apply schema migrations")
	}
	return store, nil
}

// Save implements Store.
func (s *MySQLStore) Save(ctx context.Context, n *Note) error {
	if n == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "note must not be nil")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	const stmt = `INSERT INTO notes (user_id, username, note_text, channel_id, channel_name, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`

	res, err := s.db.ExecContext(ctx, stmt,
		n.UserID,
		nullString(n.Username),
		n.Text,
		nullString(n.ChannelID),
		nullString(n.ChannelName),
		n.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "insert note")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "read inserted note id")
	}
	n.ID = id
	return nil
}

// Get returns the note with the given id.
func (s *MySQLStore) Get(ctx context.Context, id int64) (*Note, error) {
	const stmt = `SELECT id, user_id, username, note_text, channel_id, channel_name, created_at
        FROM notes WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)

	var n Note
	var username, channelID, channelName sql.NullString
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&username,
		&n.Text,
		&channelID,
		&channelName,
		&n.CreatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "query note")
	}
	n.Username = username.String
	n.ChannelID = channelID.String
	n.ChannelName = channelName.String
	return &n, nil
}

// List returns matching notes, most recent first unless ordered otherwise.
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Note, error) {
	opts.applyDefaults()

	query := `SELECT id, user_id, username, note_text, channel_id, channel_name, created_at FROM notes`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY created_at DESC, id DESC"
	if opts.Order == SortByCreatedAsc {
		order = " ORDER BY created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "query notes")
	}
	defer rows.Close()

	notes := make([]*Note, 0, opts.Limit)
	for rows.Next() {
		var n Note
		var username, channelID, channelName sql.NullString
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&username,
			&n.Text,
			&channelID,
			&channelName,
			&n.CreatedAt,
		); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "scan note row")
		}
		n.Username = username.String
		n.ChannelID = channelID.String
		n.ChannelName = channelName.String
		noteCopy := n
		notes = append(notes, &noteCopy)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "iterate note rows")
	}
	return notes, nil
}

// Stats aggregates the notes matching the filters.
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        COUNT(DISTINCT user_id) AS users,
        COUNT(DISTINCT channel_id) AS channels,
        COALESCE(UNIX_TIMESTAMP(MIN(created_at)), 0) AS oldest,
        COALESCE(UNIX_TIMESTAMP(MAX(created_at)), 0) AS newest
        FROM notes`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	row := s.db.QueryRowContext(ctx, query, filterArgs...)

	var stats Stats
	if err := row.Scan(
		&stats.Total,
		&stats.Users,
		&stats.Channels,
		&stats.OldestCreatedAt,
		&stats.NewestCreatedAt,
	); err != nil {
		return Stats{}, apperrors.Wrap(apperrors.CodeStorageFailure, err, "query note stats")
	}
	if stats.Total == 0 {
		stats.OldestCreatedAt = 0
		stats.NewestCreatedAt = 0
	}
	return stats, nil
}

// Ping implements Store.
func (s *MySQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "mysql ping")
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if opts.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, opts.UserID)
	}
	if opts.ChannelID != "" {
		conditions = append(conditions, "channel_id = ?")
		args = append(args, opts.ChannelID)
	}
	if !opts.CreatedSince.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.CreatedSince)
	}
	if !opts.CreatedUntil.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.CreatedUntil)
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(note_text LIKE ? OR username LIKE ? OR channel_name LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
