package report

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go-ml.dev/pkg/zorros"
)

/*
History is the sqlite store of completed runs
*/
type History struct {
	db *sql.DB
}

func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	db.SetMaxOpenConns(1)
	h := &History{db: db}
	if err := h.migrate(); err != nil {
		_ = db.Close()
		return nil, zorros.Wrapf(err, "failed to prepare history %v: %v", path, err.Error())
	}
	return h, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) migrate() error {
	_, err := h.db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  started_at DATETIME NOT NULL,
  model_path TEXT NOT NULL,
  output_path TEXT NOT NULL,
  platform INTEGER NOT NULL,
  constraint_code INTEGER NOT NULL,
  strategy INTEGER NOT NULL,
  transforms TEXT NOT NULL DEFAULT '',
  kind TEXT NOT NULL DEFAULT '',
  loss REAL NOT NULL,
  original_bytes INTEGER NOT NULL,
  compressed_bytes INTEGER NOT NULL
);
`)
	return err
}

/*
Record appends the run to the history
*/
func (h *History) Record(ctx context.Context, r Run) error {
	_, err := h.db.ExecContext(ctx, `
INSERT INTO runs(started_at, model_path, output_path, platform, constraint_code, strategy, transforms, kind, loss, original_bytes, compressed_bytes)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.StartedAt.UTC(), r.ModelPath, r.OutputPath, r.Platform, r.Constraint, r.Strategy,
		strings.Join(r.Transforms, ","), r.Kind, r.Loss, r.Original, r.Compressed)
	if err != nil {
		return zorros.Trace(err)
	}
	return nil
}

/*
List returns recorded runs, the oldest first
*/
func (h *History) List(ctx context.Context) ([]Run, error) {
	rows, err := h.db.QueryContext(ctx, `
SELECT started_at, model_path, output_path, platform, constraint_code, strategy, transforms, kind, loss, original_bytes, compressed_bytes
FROM runs ORDER BY id;
`)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var transforms string
		var started time.Time
		if err := rows.Scan(&started, &r.ModelPath, &r.OutputPath, &r.Platform, &r.Constraint, &r.Strategy,
			&transforms, &r.Kind, &r.Loss, &r.Original, &r.Compressed); err != nil {
			return nil, zorros.Trace(err)
		}
		r.StartedAt = started
		if transforms != "" {
			r.Transforms = strings.Split(transforms, ",")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, zorros.Trace(err)
	}
	return out, nil
}
