package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ikatan-anggota/backend/internal/models"
	"github.com/ikatan-anggota/backend/pkg/database"
)

// Repository reads member rows.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a member repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// GetByUserID returns the member linked to a user account, or nil.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*models.Member, error) {
	const q = `SELECT id, user_id, nama, no_identitas, COALESCE(institusi, ''), COALESCE(email, ''),
			COALESCE(nomor_wa, ''), COALESCE(wilayah, ''), COALESCE(tipe_keanggotaan, ''),
			status_verifikasi, COALESCE(badge, ''), created_at, updated_at
		FROM members WHERE user_id = $1
		ORDER BY id LIMIT 1`
	var m models.Member
	err := r.db.QueryRow(ctx, q, userID).Scan(&m.ID, &m.UserID, &m.Name, &m.IdentityNo, &m.Institution, &m.Email,
		&m.Phone, &m.Region, &m.MembershipType, &m.VerificationStatus, &m.Badge, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member by user: %w", err)
	}
	return &m, nil
}
