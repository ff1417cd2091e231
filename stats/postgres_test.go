package stats

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestInsertAssignmentIgnoresDuplicatesOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := &PostgresMirror{db: db}

	mock.ExpectExec(`INSERT INTO assignment_events .* ON CONFLICT \(v_id, p_id, assignment_t\) DO NOTHING`).
		WithArgs(int64(1), int64(2), "HV", 0.0, 30.0, 330.0, 500.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = m.InsertAssignment(context.Background(), 1, 2, "HV", 0, 30, 330, 500)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
