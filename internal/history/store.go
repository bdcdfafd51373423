// Package history keeps an optional SQLite record of benchmark runs so a run
// can be compared against the previous one over the same sequences.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/trackbench/internal/benchmark"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a benchmark history database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens or creates the database at path and brings its schema up to
// date. Use ":memory:" for a throwaway store.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{logger: s.logger}
	// m is not closed: that would close the shared *sql.DB.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (uint, error) {
	var v uint
	err := s.db.QueryRow("SELECT version FROM schema_migrations LIMIT 1").Scan(&v)
	return v, err
}

// migrateLogger forwards migrate output to zap.
type migrateLogger struct {
	logger *zap.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Run is one recorded benchmark run.
type Run struct {
	ID          uuid.UUID
	StartedAt   time.Time
	SequenceDir string
	Convention  string
	Cases       int
	Failed      int
	Score       int
	AltScore    int
	MeanBelow50 float64 // NaN when no primary error was below 50%
}

// NewRun summarizes a finished benchmark for recording.
func NewRun(sequenceDir, convention string, startedAt time.Time, sum *benchmark.Summary) Run {
	return Run{
		ID:          uuid.New(),
		StartedAt:   startedAt,
		SequenceDir: sequenceDir,
		Convention:  convention,
		Cases:       len(sum.Entries),
		Failed:      sum.Failed,
		Score:       sum.Score,
		AltScore:    sum.AlternateScore,
		MeanBelow50: sum.MeanBelow50,
	}
}

// Record stores run and one row per case of sum in a single transaction.
func (s *Store) Record(ctx context.Context, run Run, sum *benchmark.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO benchmark_runs (
			run_id, started_at_us, sequence_dir, convention,
			total_cases, failed_cases, score, alternate_score, mean_below_50
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.StartedAt.UnixMicro(), run.SequenceDir, run.Convention,
		run.Cases, run.Failed, run.Score, run.AltScore, nullFloat(run.MeanBelow50),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO benchmark_cases (
			run_id, case_index, config_name, relative_path, failed, failure_reason,
			length_pct, path_length_pct, primary_error, loop_closure
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range sum.Entries {
		var reason sql.NullString
		lengthPct, pathPct, primary := math.NaN(), math.NaN(), math.NaN()
		if e.Result.Failed {
			reason = sql.NullString{String: e.Result.FailureReason, Valid: true}
		} else {
			primary = e.Primary
			if e.HasLength {
				lengthPct = e.LengthErrorPct
			}
			if e.HasPathLength {
				pathPct = e.PathLengthErrorPct
			}
		}
		_, err := stmt.ExecContext(ctx,
			run.ID.String(), i, e.Case.Config, e.Case.Path, e.Result.Failed, reason,
			nullFloat(lengthPct), nullFloat(pathPct), nullFloat(primary), e.LoopClosure,
		)
		if err != nil {
			return fmt.Errorf("insert case %s: %w", e.Case.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("Recorded run", zap.String("run_id", run.ID.String()), zap.Int("cases", len(sum.Entries)))
	return nil
}

// Previous returns the most recent run over sequenceDir that started before
// the given time, or nil when there is none.
func (s *Store) Previous(ctx context.Context, sequenceDir string, before time.Time) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at_us, sequence_dir, convention,
		       total_cases, failed_cases, score, alternate_score, mean_below_50
		FROM benchmark_runs
		WHERE sequence_dir = ? AND started_at_us < ?
		ORDER BY started_at_us DESC
		LIMIT 1`, sequenceDir, before.UnixMicro())

	var (
		r       Run
		id      string
		started int64
		mean    sql.NullFloat64
	)
	err := row.Scan(&id, &started, &r.SequenceDir, &r.Convention,
		&r.Cases, &r.Failed, &r.Score, &r.AltScore, &mean)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("run %q: %w", id, err)
	}
	r.StartedAt = time.UnixMicro(started)
	r.MeanBelow50 = math.NaN()
	if mean.Valid {
		r.MeanBelow50 = mean.Float64
	}
	return &r, nil
}

// CaseCount returns the number of case rows stored for a run.
func (s *Store) CaseCount(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM benchmark_cases WHERE run_id = ?", id.String()).Scan(&n)
	return n, err
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
