package models

import "time"

// Training is a course members can register for and complete.
type Training struct {
	ID          int64     `json:"id"`
	Title       string    `json:"judul_pelatihan"`
	Description string    `json:"deskripsi_pelatihan"`
	Source      string    `json:"sumber"`
	StartsAt    time.Time `json:"tanggal_pelatihan"`
	EndsAt      time.Time `json:"tanggal_berakhir"`
	Badge       string    `json:"badge"`
	// CompletionCode is an organiser secret and never serialized.
	CompletionCode string    `json:"-"`
	Link           string    `json:"link"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
