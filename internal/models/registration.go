package models

import "time"

// Registration links one member to one training with a secret completion code.
type Registration struct {
	ID           int64      `json:"id"`
	TrainingID   int64      `json:"pelatihan_id"`
	MemberID     int64      `json:"member_id"`
	Code         string     `json:"kode"`
	Sent         bool       `json:"is_kirim"`
	RegisteredAt time.Time  `json:"waktu_daftar"`
	CompletedAt  *time.Time `json:"waktu_selesai,omitempty"`
}

// Registrant is one roster line: a registration joined with its member's name.
// MemberName is empty when the member row no longer exists.
type Registrant struct {
	RegistrationID int64
	TrainingID     int64
	MemberID       int64
	MemberName     string
	Code           string
	Sent           bool
}

// RosterRow is one spreadsheet line of a roster export.
type RosterRow struct {
	TrainingTitle string
	MemberName    string
	IdentityNo    string
	Institution   string
	Email         string
	Phone         string
	Region        string
	Code          string
	Sent          bool
	RegisteredAt  time.Time
	CompletedAt   *time.Time
}
