// Package badges models the per-member training badge ledger stored as JSON
// text on the member row.
//
// Wire format:
//
//	{"25": {"0": {...entry...}, "1": {...}}, "26": {...}}
//
// The outer key is the generation (last two characters of the member's identity
// number); inner keys are a dense, append-only index starting at "0".
package badges

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ikatan-anggota/backend/internal/apperr"
)

// Status is the progress of a member in one training.
type Status string

const (
	StatusOngoing     Status = "ongoing"
	StatusCompleted   Status = "completed"
	StatusUncompleted Status = "uncompleted"
)

func (s Status) valid() bool {
	switch s {
	case StatusOngoing, StatusCompleted, StatusUncompleted:
		return true
	}
	return false
}

// Entry is one training in a member's ledger.
type Entry struct {
	TrainingID   int64      `json:"pelatihan_id"`
	Title        string     `json:"judul_pelatihan"`
	Description  string     `json:"deskripsi_pelatihan"`
	Source       string     `json:"sumber"`
	Badge        string     `json:"badge"`
	Generation   string     `json:"angkatan"`
	Status       Status     `json:"status"`
	RegisteredAt time.Time  `json:"waktu_daftar"`
	CompletedAt  *time.Time `json:"waktu_selesai,omitempty"`
	Duration     *Duration  `json:"durasi,omitempty"`
}

// Patch holds the fields UpdateEntry merges into an entry. Nil fields are left alone.
type Patch struct {
	Status       *Status
	RegisteredAt *time.Time
	CompletedAt  *time.Time
	Duration     *Duration
}

// Ledger maps a generation key to its entries in index order.
type Ledger map[string][]Entry

// Location addresses one entry.
type Location struct {
	Generation string
	Index      int
}

// GenerationKey derives the generation bucket from an identity number.
func GenerationKey(identity string) string {
	r := []rune(identity)
	if len(r) <= 2 {
		return identity
	}
	return string(r[len(r)-2:])
}

// Decode parses the badge column. Empty or null input yields an empty ledger.
func Decode(raw []byte) (Ledger, error) {
	l := Ledger{}
	if err := json.Unmarshal(nonEmpty(raw), &l); err != nil {
		return nil, apperr.BadgeDecode(err)
	}
	return l, nil
}

// DecodeValue accepts what a driver or caller may hold for the column:
// nil, string, *string, []byte, or an already decoded Ledger.
func DecodeValue(v any) (Ledger, error) {
	switch t := v.(type) {
	case nil:
		return Ledger{}, nil
	case Ledger:
		if t == nil {
			return Ledger{}, nil
		}
		return t, nil
	case string:
		return Decode([]byte(t))
	case *string:
		if t == nil {
			return Ledger{}, nil
		}
		return Decode([]byte(*t))
	case []byte:
		return Decode(t)
	default:
		return nil, apperr.BadgeDecode(fmt.Errorf("unsupported badge value %T", v))
	}
}

// Encode serializes the ledger to its wire format.
func Encode(l Ledger) (string, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("encode badge ledger: %w", err)
	}
	return string(b), nil
}

// Find returns the index of trainingID within generation.
func (l Ledger) Find(generation string, trainingID int64) (int, bool) {
	for i, e := range l[generation] {
		if e.TrainingID == trainingID {
			return i, true
		}
	}
	return -1, false
}

// FindAll returns every location referencing trainingID, generations in key order.
func (l Ledger) FindAll(trainingID int64) []Location {
	var out []Location
	for _, gen := range l.generations() {
		for i, e := range l[gen] {
			if e.TrainingID == trainingID {
				out = append(out, Location{Generation: gen, Index: i})
			}
		}
	}
	return out
}

// Append adds e under generation at the next dense index and returns that index.
// The generation container is created when absent.
func (l *Ledger) Append(generation string, e Entry) int {
	if *l == nil {
		*l = Ledger{}
	}
	idx := len((*l)[generation])
	(*l)[generation] = append((*l)[generation], e)
	return idx
}

// Update merges p into the entry at (generation, index).
func (l Ledger) Update(generation string, index int, p Patch) error {
	entries, ok := l[generation]
	if !ok || index < 0 || index >= len(entries) {
		return apperr.EntryNotFound(fmt.Sprintf("badge entry %s/%d not found", generation, index))
	}
	e := &entries[index]
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.RegisteredAt != nil {
		e.RegisteredAt = *p.RegisteredAt
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		e.CompletedAt = &t
	}
	if p.Duration != nil {
		d := *p.Duration
		e.Duration = &d
	}
	return nil
}

// Entries returns a copy of the entries of one generation.
func (l Ledger) Entries(generation string) []Entry {
	out := make([]Entry, len(l[generation]))
	copy(out, l[generation])
	return out
}

func (l Ledger) generations() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON writes generations in key order and indices in numeric order.
func (l Ledger) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for gi, gen := range l.generations() {
		if gi > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(gen)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteString(":{")
		for i, e := range l[gen] {
			if i > 0 {
				buf.WriteByte(',')
			}
			v, err := json.Marshal(e)
			if err != nil {
				return nil, err
			}
			buf.WriteString(`"` + strconv.Itoa(i) + `":`)
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the canonical object-of-objects shape. A generation stored
// as a JSON array is migrated in order; any other shape is rejected.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	out := Ledger{}
	if bytes.Equal(data, []byte("null")) {
		*l = out
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		return fmt.Errorf("badge ledger must be a JSON object")
	}
	var gens map[string]json.RawMessage
	if err := json.Unmarshal(data, &gens); err != nil {
		return err
	}
	for gen, raw := range gens {
		entries, err := decodeGeneration(bytes.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("generation %q: %w", gen, err)
		}
		out[gen] = entries
	}
	*l = out
	return nil
}

func decodeGeneration(raw []byte) ([]Entry, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Entry{}, nil
	}
	switch raw[0] {
	case '[':
		var entries []Entry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, err
		}
		return entries, validate(entries)
	case '{':
		var indexed map[string]Entry
		if err := json.Unmarshal(raw, &indexed); err != nil {
			return nil, err
		}
		entries := make([]Entry, len(indexed))
		for k, e := range indexed {
			i, err := strconv.Atoi(k)
			if err != nil || i < 0 || i >= len(indexed) {
				return nil, fmt.Errorf("index %q is not dense", k)
			}
			entries[i] = e
		}
		return entries, validate(entries)
	default:
		return nil, fmt.Errorf("entries must be an object or array")
	}
}

func validate(entries []Entry) error {
	seen := make(map[int64]bool, len(entries))
	for i, e := range entries {
		if !e.Status.valid() {
			return fmt.Errorf("entry %d: unknown status %q", i, e.Status)
		}
		if seen[e.TrainingID] {
			return fmt.Errorf("entry %d: training %d listed twice", i, e.TrainingID)
		}
		seen[e.TrainingID] = true
	}
	return nil
}

func nonEmpty(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null")
	}
	return raw
}
