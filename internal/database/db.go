package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ponytojas/go-cr310-ingest/config"
	"github.com/ponytojas/go-cr310-ingest/internal/ingest"
	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

const uniqueViolation = "23505"

// PostgresStore persists readings in a Postgres (optionally Timescale) table.
type PostgresStore struct {
	db         *sql.DB
	table      string
	hypertable bool
	logger     *zap.Logger

	insertSQL string
	columns   string
}

var _ ingest.Store = (*PostgresStore)(nil)

// OpenPostgres opens a pooled connection through the pgx stdlib driver and
// checks that the server answers.
func OpenPostgres(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.GetDBConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConns)
	}
	if cfg.Database.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdle)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// NewPostgresStore wraps db. table must be a plain identifier; config
// validation guarantees that.
func NewPostgresStore(db *sql.DB, table string, hypertable bool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	cols := readingColumns()
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return &PostgresStore{
		db:         db,
		table:      table,
		hypertable: hypertable,
		logger:     logger,
		columns:    strings.Join(cols, ", "),
		insertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (equipo, timestamp_dt) DO NOTHING",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", ")),
	}
}

// readingColumns lists the persisted columns in scan order.
func readingColumns() []string {
	cols := []string{"id", "equipo"}
	for _, ch := range models.ChannelSpecs {
		cols = append(cols, strings.ToLower(ch.Name))
	}
	return append(cols, "timestamp_raw", "timestamp_dt", "created_at", "source", "inconsistent", "warning")
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &models.UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

// InitializeTable checks if the table exists and creates it if it doesn't.
// Uniqueness of (equipo, timestamp_dt) is what makes Insert duplicate safe;
// timestamp_dt is a bijection of timestamp_raw under the strict layout and
// is the partitioning column when the table is a hypertable.
func (s *PostgresStore) InitializeTable(ctx context.Context) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, s.table).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}

	if exists {
		s.logger.Info("Table already exists", zap.String("table", s.table))
		return nil
	}

	s.logger.Info("Creating table", zap.String("table", s.table))
	if _, err := s.db.ExecContext(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_timestamp_dt_idx ON %s (timestamp_dt DESC, seq)", s.table, s.table)); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if s.hypertable {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
			"SELECT create_hypertable('%s', 'timestamp_dt', if_not_exists => TRUE)", s.table)); err != nil {
			return fmt.Errorf("failed to convert table to hypertable: %w", err)
		}
		s.logger.Info("Table converted to hypertable", zap.String("table", s.table))
	}

	return nil
}

func (s *PostgresStore) createTableSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", s.table)
	b.WriteString("\tseq BIGSERIAL NOT NULL,\n")
	b.WriteString("\tid TEXT NOT NULL,\n")
	b.WriteString("\tequipo TEXT NOT NULL,\n")
	for _, ch := range models.ChannelSpecs {
		fmt.Fprintf(&b, "\t%s DOUBLE PRECISION NOT NULL,\n", strings.ToLower(ch.Name))
	}
	b.WriteString("\ttimestamp_raw TEXT NOT NULL,\n")
	b.WriteString("\ttimestamp_dt TIMESTAMPTZ NOT NULL,\n")
	b.WriteString("\tcreated_at TIMESTAMPTZ NOT NULL,\n")
	b.WriteString("\tsource TEXT NOT NULL,\n")
	b.WriteString("\tinconsistent BOOLEAN NOT NULL DEFAULT FALSE,\n")
	b.WriteString("\twarning TEXT NOT NULL DEFAULT '',\n")
	fmt.Fprintf(&b, "\tCONSTRAINT %s_equipo_timestamp_key UNIQUE (equipo, timestamp_dt)\n)", s.table)
	return b.String()
}

// Insert writes r in one statement. A conflicting row makes the statement
// affect nothing, which is reported as a duplicate.
func (s *PostgresStore) Insert(ctx context.Context, r *models.Reading) error {
	args := make([]any, 0, len(models.ChannelSpecs)+8)
	args = append(args, r.ID, r.EquipmentID)
	for _, ch := range models.ChannelSpecs {
		args = append(args, ch.Get(&r.Channels))
	}
	args = append(args, r.Timestamp, r.TimestampAt, r.IngestedAt, r.Source, r.Inconsistent, r.Warning)

	res, err := s.db.ExecContext(ctx, s.insertSQL, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &models.DuplicateError{EquipmentID: r.EquipmentID, Timestamp: r.Timestamp}
		}
		return &models.UnavailableError{Op: "insert", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &models.UnavailableError{Op: "insert", Err: err}
	}
	if n == 0 {
		return &models.DuplicateError{EquipmentID: r.EquipmentID, Timestamp: r.Timestamp}
	}
	return nil
}

// Query returns the filtered page, newest first, ties by insertion order.
func (s *PostgresStore) Query(ctx context.Context, f models.QueryFilter) (*models.Page, error) {
	where, args := buildWhere(f)

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table+where, args...).Scan(&total); err != nil {
		return nil, &models.UnavailableError{Op: "count", Err: err}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = models.DefaultLimit
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY timestamp_dt DESC, seq ASC LIMIT $%d OFFSET $%d",
		s.columns, s.table, where, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &models.UnavailableError{Op: "query", Err: err}
	}
	defer rows.Close()

	page := &models.Page{Readings: []models.Reading{}, Total: total}
	for rows.Next() {
		var r models.Reading
		dest := []any{&r.ID, &r.EquipmentID}
		for _, ch := range models.ChannelSpecs {
			dest = append(dest, ch.Ref(&r.Channels))
		}
		dest = append(dest, &r.Timestamp, &r.TimestampAt, &r.IngestedAt, &r.Source, &r.Inconsistent, &r.Warning)
		if err := rows.Scan(dest...); err != nil {
			return nil, &models.UnavailableError{Op: "scan", Err: err}
		}
		r.TimestampAt = r.TimestampAt.UTC()
		r.IngestedAt = r.IngestedAt.UTC()
		page.Readings = append(page.Readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.UnavailableError{Op: "query", Err: err}
	}
	return page, nil
}

func buildWhere(f models.QueryFilter) (string, []any) {
	var conds []string
	var args []any
	if f.EquipmentID != "" {
		args = append(args, f.EquipmentID)
		conds = append(conds, fmt.Sprintf("equipo = $%d", len(args)))
	}
	if f.Start != nil {
		args = append(args, *f.Start)
		conds = append(conds, fmt.Sprintf("timestamp_dt >= $%d", len(args)))
	}
	if f.End != nil {
		args = append(args, *f.End)
		conds = append(conds, fmt.Sprintf("timestamp_dt < $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
