package models

import "time"

// Verification statuses of a membership application.
const (
	VerificationPending  = "PENDING"
	VerificationAccepted = "DITERIMA"
	VerificationRejected = "DITOLAK"
)

// Member is an organisation member. Badge holds the raw badge ledger text.
type Member struct {
	ID                 int64     `json:"id"`
	UserID             *int64    `json:"user_id,omitempty"`
	Name               string    `json:"nama"`
	IdentityNo         string    `json:"no_identitas"`
	Institution        string    `json:"institusi"`
	Email              string    `json:"email"`
	Phone              string    `json:"nomor_wa"`
	Region             string    `json:"wilayah"`
	MembershipType     string    `json:"tipe_keanggotaan"`
	VerificationStatus string    `json:"status_verifikasi"`
	Badge              string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
