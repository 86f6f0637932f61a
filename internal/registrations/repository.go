package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ikatan-anggota/backend/internal/apperr"
	"github.com/ikatan-anggota/backend/internal/models"
	"github.com/ikatan-anggota/backend/pkg/database"
)

const (
	pgUniqueViolation = "23505"

	constraintCode = "training_registrations_code_key"
	constraintPair = "training_registrations_training_member_key"
)

// errPairTaken is returned by CreateRegistration when the (training, member) pair
// already exists. The service turns it into a duplicate registration error.
var errPairTaken = errors.New("registration already exists for training and member")

// Store is the persistence used by Service.
type Store interface {
	// InTx runs fn inside one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error

	FindRegistration(ctx context.Context, trainingID, memberID int64) (*models.Registration, error)
	ListRegistrants(ctx context.Context, trainingID int64) ([]models.Registrant, error)
	ListByMember(ctx context.Context, memberID int64) ([]models.Registration, error)
	RosterRows(ctx context.Context, trainingID int64) ([]models.RosterRow, error)
	MarkSent(ctx context.Context, registrationID int64) (bool, error)
	MarkSentFor(ctx context.Context, trainingID, memberID int64) (bool, error)
	Delete(ctx context.Context, registrationID int64) (bool, error)
}

// TxStore is the set of queries that run inside a workflow transaction.
type TxStore interface {
	GetTraining(ctx context.Context, id int64) (*models.Training, error)
	// GetMemberForUpdate loads the member and locks its row until the transaction ends.
	GetMemberForUpdate(ctx context.Context, id int64) (*models.Member, error)
	FindRegistration(ctx context.Context, trainingID, memberID int64) (*models.Registration, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	SetCompletedAt(ctx context.Context, registrationID int64, at time.Time) error
	UpdateMemberBadge(ctx context.Context, memberID int64, badge string) error
}

// Repository handles training registration persistence.
type Repository struct {
	db             database.Beginner
	acquireTimeout time.Duration
	queries
}

// NewRepository creates a registrations repository. acquireTimeout bounds how long
// a transaction waits for a pooled connection.
func NewRepository(db database.Beginner, acquireTimeout time.Duration) *Repository {
	return &Repository{db: db, acquireTimeout: acquireTimeout, queries: queries{db: db}}
}

// InTx implements Store.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return database.WithTx(ctx, r.db, r.acquireTimeout, func(ctx context.Context, tx database.DBTX) error {
		return fn(ctx, queries{db: tx})
	})
}

// queries runs against either the pool or an open transaction.
type queries struct {
	db database.DBTX
}

func (q queries) GetTraining(ctx context.Context, id int64) (*models.Training, error) {
	const sql = `SELECT id, judul, deskripsi, sumber, badge FROM trainings WHERE id = $1`
	var t models.Training
	err := q.db.QueryRow(ctx, sql, id).Scan(&t.ID, &t.Title, &t.Description, &t.Source, &t.Badge)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get training: %w", err)
	}
	return &t, nil
}

func (q queries) GetMemberForUpdate(ctx context.Context, id int64) (*models.Member, error) {
	const sql = `SELECT id, nama, no_identitas, COALESCE(badge, '') FROM members WHERE id = $1 FOR UPDATE`
	var m models.Member
	err := q.db.QueryRow(ctx, sql, id).Scan(&m.ID, &m.Name, &m.IdentityNo, &m.Badge)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock member: %w", err)
	}
	return &m, nil
}

func (q queries) FindRegistration(ctx context.Context, trainingID, memberID int64) (*models.Registration, error) {
	const sql = `SELECT id, training_id, member_id, code, sent, registered_at, completed_at
		FROM training_registrations WHERE training_id = $1 AND member_id = $2`
	var reg models.Registration
	err := q.db.QueryRow(ctx, sql, trainingID, memberID).Scan(
		&reg.ID, &reg.TrainingID, &reg.MemberID, &reg.Code, &reg.Sent, &reg.RegisteredAt, &reg.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// CodeExists implements codegen.Checker.
func (q queries) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM training_registrations WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}

// CreateRegistration inserts reg and sets its ID. A lost race on the code constraint
// returns a code conflict error; on the pair constraint, errPairTaken.
func (q queries) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	const sql = `INSERT INTO training_registrations (training_id, member_id, code, sent, registered_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id`
	err := q.db.QueryRow(ctx, sql, reg.TrainingID, reg.MemberID, reg.Code, reg.RegisteredAt).Scan(&reg.ID)
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case constraintCode:
			return apperr.CodeConflict(err)
		case constraintPair:
			return errPairTaken
		}
	}
	return fmt.Errorf("insert registration: %w", err)
}

func (q queries) SetCompletedAt(ctx context.Context, registrationID int64, at time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE training_registrations SET completed_at = $2 WHERE id = $1`, registrationID, at)
	if err != nil {
		return fmt.Errorf("set completed_at: %w", err)
	}
	return nil
}

func (q queries) UpdateMemberBadge(ctx context.Context, memberID int64, badge string) error {
	_, err := q.db.Exec(ctx, `UPDATE members SET badge = $2, updated_at = NOW() WHERE id = $1`, memberID, badge)
	if err != nil {
		return fmt.Errorf("update member badge: %w", err)
	}
	return nil
}

// ListRegistrants returns the roster of a training. For registrations whose
// member row was deleted, MemberID is 0 and MemberName is empty.
func (q queries) ListRegistrants(ctx context.Context, trainingID int64) ([]models.Registrant, error) {
	const sql = `SELECT r.id, r.training_id, COALESCE(r.member_id, 0), COALESCE(m.nama, ''), r.code, r.sent
		FROM training_registrations r
		LEFT JOIN members m ON m.id = r.member_id
		WHERE r.training_id = $1
		ORDER BY r.registered_at, r.id`
	rows, err := q.db.Query(ctx, sql, trainingID)
	if err != nil {
		return nil, fmt.Errorf("list registrants: %w", err)
	}
	defer rows.Close()
	list := []models.Registrant{}
	for rows.Next() {
		var r models.Registrant
		if err := rows.Scan(&r.RegistrationID, &r.TrainingID, &r.MemberID, &r.MemberName, &r.Code, &r.Sent); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// ListByMember returns every registration of a member, newest first.
func (q queries) ListByMember(ctx context.Context, memberID int64) ([]models.Registration, error) {
	const sql = `SELECT id, training_id, member_id, code, sent, registered_at, completed_at
		FROM training_registrations WHERE member_id = $1 ORDER BY registered_at DESC, id DESC`
	rows, err := q.db.Query(ctx, sql, memberID)
	if err != nil {
		return nil, fmt.Errorf("list member registrations: %w", err)
	}
	defer rows.Close()
	list := []models.Registration{}
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.TrainingID, &reg.MemberID, &reg.Code, &reg.Sent, &reg.RegisteredAt, &reg.CompletedAt); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}

// RosterRows joins a training's registrations with member profile fields for export.
func (q queries) RosterRows(ctx context.Context, trainingID int64) ([]models.RosterRow, error) {
	const sql = `SELECT t.judul, COALESCE(m.nama, ''), COALESCE(m.no_identitas, ''), COALESCE(m.institusi, ''),
			COALESCE(m.email, ''), COALESCE(m.nomor_wa, ''), COALESCE(m.wilayah, ''),
			r.code, r.sent, r.registered_at, r.completed_at
		FROM training_registrations r
		JOIN trainings t ON t.id = r.training_id
		LEFT JOIN members m ON m.id = r.member_id
		WHERE r.training_id = $1
		ORDER BY r.registered_at, r.id`
	rows, err := q.db.Query(ctx, sql, trainingID)
	if err != nil {
		return nil, fmt.Errorf("roster rows: %w", err)
	}
	defer rows.Close()
	var list []models.RosterRow
	for rows.Next() {
		var r models.RosterRow
		if err := rows.Scan(&r.TrainingTitle, &r.MemberName, &r.IdentityNo, &r.Institution,
			&r.Email, &r.Phone, &r.Region, &r.Code, &r.Sent, &r.RegisteredAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// MarkSent sets the sent flag. It reports false when no row matched.
func (q queries) MarkSent(ctx context.Context, registrationID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE training_registrations SET sent = TRUE WHERE id = $1`, registrationID)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSentFor sets the sent flag by (training, member).
func (q queries) MarkSentFor(ctx context.Context, trainingID, memberID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE training_registrations SET sent = TRUE WHERE training_id = $1 AND member_id = $2`,
		trainingID, memberID)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes one registration row. The member's badge ledger is left as is.
func (q queries) Delete(ctx context.Context, registrationID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM training_registrations WHERE id = $1`, registrationID)
	if err != nil {
		return false, fmt.Errorf("delete registration: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
