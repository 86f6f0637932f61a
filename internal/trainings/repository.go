package trainings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ikatan-anggota/backend/internal/models"
	"github.com/ikatan-anggota/backend/pkg/database"
)

const columns = `id, judul, deskripsi, sumber, tanggal_mulai, tanggal_berakhir, badge, kode_selesai, link, created_at, updated_at`

// Repository handles training persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a training repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func scan(row pgx.Row, t *models.Training) error {
	return row.Scan(&t.ID, &t.Title, &t.Description, &t.Source, &t.StartsAt, &t.EndsAt,
		&t.Badge, &t.CompletionCode, &t.Link, &t.CreatedAt, &t.UpdatedAt)
}

// Create inserts a training and fills its id and timestamps.
func (r *Repository) Create(ctx context.Context, t *models.Training) error {
	const q = `INSERT INTO trainings (judul, deskripsi, sumber, tanggal_mulai, tanggal_berakhir, badge, kode_selesai, link)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, t.Title, t.Description, t.Source, t.StartsAt, t.EndsAt, t.Badge, t.CompletionCode, t.Link).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert training: %w", err)
	}
	return nil
}

// GetByID returns a training, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Training, error) {
	var t models.Training
	err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM trainings WHERE id = $1`, id), &t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get training: %w", err)
	}
	return &t, nil
}

// List returns all trainings, upcoming first.
func (r *Repository) List(ctx context.Context) ([]models.Training, error) {
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM trainings ORDER BY tanggal_mulai DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list trainings: %w", err)
	}
	defer rows.Close()
	list := []models.Training{}
	for rows.Next() {
		var t models.Training
		if err := scan(rows, &t); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Update replaces the editable fields. It reports false when no row matched.
func (r *Repository) Update(ctx context.Context, t *models.Training) (bool, error) {
	const q = `UPDATE trainings SET judul = $2, deskripsi = $3, sumber = $4, tanggal_mulai = $5, tanggal_berakhir = $6,
		badge = $7, kode_selesai = $8, link = $9, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, t.ID, t.Title, t.Description, t.Source, t.StartsAt, t.EndsAt, t.Badge, t.CompletionCode, t.Link)
	if err != nil {
		return false, fmt.Errorf("update training: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a training and, by cascade, its registrations.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM trainings WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete training: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
