package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps durable job snapshots so metadata and results survive
// a restart. It implements jobs.Persister.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, filename, input_path, status, progress, error,
			options_json, plan_json, stages_json, result_json,
			created_at, updated_at, started_at, completed_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.Job, 0)
	for rows.Next() {
		var item jobs.Job
		var status, optionsJSON, planJSON, stagesJSON string
		var resultJSON sql.NullString
		var startedAt, completedAt sql.NullTime
		if err := rows.Scan(
			&item.ID,
			&item.Filename,
			&item.InputPath,
			&status,
			&item.Progress,
			&item.Error,
			&optionsJSON,
			&planJSON,
			&stagesJSON,
			&resultJSON,
			&item.CreatedAt,
			&item.UpdatedAt,
			&startedAt,
			&completedAt,
		); err != nil {
			return nil, err
		}
		item.Status = jobs.Status(status)
		if err := json.Unmarshal([]byte(optionsJSON), &item.Options); err != nil {
			return nil, fmt.Errorf("decode options for job %s: %w", item.ID, err)
		}
		if err := json.Unmarshal([]byte(planJSON), &item.Plan); err != nil {
			return nil, fmt.Errorf("decode plan for job %s: %w", item.ID, err)
		}
		if err := json.Unmarshal([]byte(stagesJSON), &item.Stages); err != nil {
			return nil, fmt.Errorf("decode stages for job %s: %w", item.ID, err)
		}
		if resultJSON.Valid && resultJSON.String != "" {
			if err := json.Unmarshal([]byte(resultJSON.String), &item.Result); err != nil {
				return nil, fmt.Errorf("decode result for job %s: %w", item.ID, err)
			}
		}
		if startedAt.Valid {
			t := startedAt.Time
			item.StartedAt = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			item.CompletedAt = &t
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	optionsJSON, err := json.Marshal(job.Options)
	if err != nil {
		return err
	}
	planJSON, err := json.Marshal(job.Plan)
	if err != nil {
		return err
	}
	stagesJSON, err := json.Marshal(job.Stages)
	if err != nil {
		return err
	}
	var resultJSON sql.NullString
	if job.Result != nil {
		payload, err := json.Marshal(job.Result)
		if err != nil {
			return err
		}
		resultJSON = sql.NullString{String: string(payload), Valid: true}
	}
	var startedAt, completedAt sql.NullTime
	if job.StartedAt != nil {
		startedAt = sql.NullTime{Time: job.StartedAt.UTC(), Valid: true}
	}
	if job.CompletedAt != nil {
		completedAt = sql.NullTime{Time: job.CompletedAt.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, filename, input_path, status, progress, error,
			options_json, plan_json, stages_json, result_json,
			created_at, updated_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename=excluded.filename,
			input_path=excluded.input_path,
			status=excluded.status,
			progress=excluded.progress,
			error=excluded.error,
			options_json=excluded.options_json,
			plan_json=excluded.plan_json,
			stages_json=excluded.stages_json,
			result_json=excluded.result_json,
			updated_at=excluded.updated_at,
			started_at=excluded.started_at,
			completed_at=excluded.completed_at`,
		job.ID,
		job.Filename,
		job.InputPath,
		string(job.Status),
		job.Progress,
		job.Error,
		string(optionsJSON),
		string(planJSON),
		string(stagesJSON),
		resultJSON,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
		startedAt,
		completedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

// DeleteTerminalBefore removes completed and failed jobs whose last
// update is older than cutoff. Scheduled as a retention sweep.
func (s *SQLiteStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN ('completed', 'failed') AND updated_at <= ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
