package trainings

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "judul", "deskripsi", "sumber", "tanggal_mulai", "tanggal_berakhir", "badge", "kode_selesai", "link", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM trainings WHERE id = \$1`).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(7), "Dasar", "desc", "PP", start, start.Add(48*time.Hour), "leader-1", "SELESAI", "https://x", start, start))
	mock.ExpectQuery(`FROM trainings WHERE id = \$1`).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows(cols))

	tr, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, "Dasar", tr.Title)
	assert.Equal(t, "SELESAI", tr.CompletionCode)

	tr, err = repo.GetByID(context.Background(), 8)
	require.NoError(t, err)
	assert.Nil(t, tr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DeleteReportsMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectExec(`DELETE FROM trainings`).WithArgs(int64(3)).WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ok, err := repo.Delete(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
