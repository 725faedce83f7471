package osmgeo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/encoding/wkb"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entities (
	kind  TEXT    NOT NULL,
	id    INTEGER NOT NULL,
	tags  TEXT    NOT NULL,
	geom  BLOB    NOT NULL,
	block INTEGER NOT NULL,
	grp   INTEGER NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT    PRIMARY KEY,
	source     TEXT    NOT NULL,
	state      TEXT    NOT NULL,
	committed  INTEGER NOT NULL,
	dropped    INTEGER NOT NULL,
	started_at TEXT    NOT NULL,
	updated_at TEXT    NOT NULL
);`

// SQLiteSink writes entities to a SQLite database, one transaction per
// group. Geometries are stored as WKB and tags as a JSON object.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; the converter commits groups sequentially.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Commit upserts entities in a single transaction.
func (s *SQLiteSink) Commit(ctx context.Context, ref GroupRef, entities []Entity) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO entities (kind, id, tags, geom, block, grp) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entities {
		tags, err := json.Marshal(e.Tags)
		if err != nil {
			return fmt.Errorf("%s %d: encode tags: %w", e.Kind, e.ID, err)
		}
		geom, err := wkb.Marshal(e.Geometry)
		if err != nil {
			return fmt.Errorf("%s %d: encode geometry: %w", e.Kind, e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.Kind.String(), e.ID, string(tags), geom, ref.Block, ref.Group); err != nil {
			return fmt.Errorf("%s %d: %w", e.Kind, e.ID, err)
		}
	}
	return tx.Commit()
}

// RecordRun upserts a row in the runs table.
func (s *SQLiteSink) RecordRun(ctx context.Context, run RunInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, source, state, committed, dropped, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.State.String(), int64(run.Committed), int64(run.Dropped),
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Count returns the number of stored entities.
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, err
}

// Get reads one entity back. ok is false when it is not stored.
func (s *SQLiteSink) Get(ctx context.Context, kind Kind, id int64) (e Entity, ok bool, err error) {
	var (
		tags string
		geom []byte
	)
	err = s.db.QueryRowContext(ctx, `SELECT tags, geom FROM entities WHERE kind = ? AND id = ?`, kind.String(), id).
		Scan(&tags, &geom)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, false, nil
	}
	if err != nil {
		return Entity{}, false, err
	}

	e = Entity{Kind: kind, ID: id}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return Entity{}, false, fmt.Errorf("%s %d: decode tags: %w", kind, id, err)
	}
	if e.Geometry, err = wkb.Unmarshal(geom); err != nil {
		return Entity{}, false, fmt.Errorf("%s %d: decode geometry: %w", kind, id, err)
	}
	return e, true, nil
}

// Runs returns the recorded runs, oldest first.
func (s *SQLiteSink) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, state, committed, dropped, started_at, updated_at FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			r                  RunInfo
			state              string
			committed, dropped int64
			started, updated   string
		)
		if err := rows.Scan(&r.ID, &r.Source, &state, &committed, &dropped, &started, &updated); err != nil {
			return nil, err
		}
		r.State = parseState(state)
		r.Committed, r.Dropped = uint64(committed), uint64(dropped)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
