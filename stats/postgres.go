package stats

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"ridesim/logging"
)

// PostgresMirror is an optional append-only mirror of the assignment_data
// table into Postgres, for external dashboards that cannot tail CSV files.
// Grounded on pedeveaux-kafka-ride-sharing/rides_db/db.go + insert.go.
type PostgresMirror struct {
	db *sql.DB
}

// NewPostgresMirror opens and pings connStr, then ensures the mirror table
// exists.
func NewPostgresMirror(ctx context.Context, connStr string) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS assignment_events (
			v_id bigint, p_id bigint, kind text, assignment_t double precision,
			dispatch_t double precision, delivery_t double precision, dispatch_d double precision,
			PRIMARY KEY (v_id, p_id, assignment_t)
		)`)
	if err != nil {
		return nil, fmt.Errorf("create mirror table: %w", err)
	}
	logging.Logger.Info("connected to postgres statistics mirror")
	return &PostgresMirror{db: db}, nil
}

// InsertAssignment mirrors one assignment_data row, ignoring duplicates so
// the sink stays append-only and idempotent under replay.
func (m *PostgresMirror) InsertAssignment(ctx context.Context, vID, pID int64, kind string, assignmentT, dispatchT, deliveryT, dispatchD float64) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO assignment_events (v_id, p_id, kind, assignment_t, dispatch_t, delivery_t, dispatch_d)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (v_id, p_id, assignment_t) DO NOTHING
	`, vID, pID, kind, assignmentT, dispatchT, deliveryT, dispatchD)
	return err
}

func (m *PostgresMirror) Close() error { return m.db.Close() }
