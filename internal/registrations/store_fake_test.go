package registrations

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ikatan-anggota/backend/internal/apperr"
	"github.com/ikatan-anggota/backend/internal/models"
)

// memStore is an in-memory Store. Transactions are serialized by mu and roll
// back by restoring a snapshot, which mirrors the member row lock of the real
// repository.
type memStore struct {
	mu        sync.Mutex
	trainings map[int64]models.Training
	members   map[int64]models.Member
	regs      map[int64]models.Registration
	nextID    int64

	// conflicts makes the next n inserts lose the code uniqueness race.
	conflicts int
	inserts   int
}

func newMemStore() *memStore {
	return &memStore{
		trainings: map[int64]models.Training{},
		members:   map[int64]models.Member{},
		regs:      map[int64]models.Registration{},
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := make(map[int64]models.Member, len(s.members))
	for k, v := range s.members {
		members[k] = v
	}
	regs := make(map[int64]models.Registration, len(s.regs))
	for k, v := range s.regs {
		regs[k] = v
	}
	nextID := s.nextID

	if err := fn(ctx, memTx{s}); err != nil {
		s.members, s.regs, s.nextID = members, regs, nextID
		return err
	}
	return nil
}

// memTx runs with memStore.mu held.
type memTx struct{ s *memStore }

func (t memTx) GetTraining(_ context.Context, id int64) (*models.Training, error) {
	tr, ok := t.s.trainings[id]
	if !ok {
		return nil, nil
	}
	return &tr, nil
}

func (t memTx) GetMemberForUpdate(_ context.Context, id int64) (*models.Member, error) {
	m, ok := t.s.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (t memTx) FindRegistration(_ context.Context, trainingID, memberID int64) (*models.Registration, error) {
	return t.s.find(trainingID, memberID), nil
}

func (t memTx) CodeExists(_ context.Context, code string) (bool, error) {
	for _, r := range t.s.regs {
		if r.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (t memTx) CreateRegistration(_ context.Context, reg *models.Registration) error {
	t.s.inserts++
	if t.s.conflicts > 0 {
		t.s.conflicts--
		return apperr.CodeConflict(errors.New("duplicate key value violates unique constraint"))
	}
	if t.s.find(reg.TrainingID, reg.MemberID) != nil {
		return errPairTaken
	}
	t.s.nextID++
	reg.ID = t.s.nextID
	t.s.regs[reg.ID] = *reg
	return nil
}

func (t memTx) SetCompletedAt(_ context.Context, registrationID int64, at time.Time) error {
	r := t.s.regs[registrationID]
	r.CompletedAt = &at
	t.s.regs[registrationID] = r
	return nil
}

func (t memTx) UpdateMemberBadge(_ context.Context, memberID int64, badge string) error {
	m := t.s.members[memberID]
	m.Badge = badge
	t.s.members[memberID] = m
	return nil
}

// deleteMember removes a member the way ON DELETE SET NULL does: its
// registrations stay with member id 0.
func (s *memStore) deleteMember(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, id)
	for k, r := range s.regs {
		if r.MemberID == id {
			r.MemberID = 0
			s.regs[k] = r
		}
	}
}

func (s *memStore) find(trainingID, memberID int64) *models.Registration {
	for _, r := range s.regs {
		if r.TrainingID == trainingID && r.MemberID == memberID {
			out := r
			return &out
		}
	}
	return nil
}

func (s *memStore) sortedRegs() []models.Registration {
	out := make([]models.Registration, 0, len(s.regs))
	for _, r := range s.regs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) FindRegistration(_ context.Context, trainingID, memberID int64) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(trainingID, memberID), nil
}

func (s *memStore) ListRegistrants(_ context.Context, trainingID int64) ([]models.Registrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []models.Registrant{}
	for _, r := range s.sortedRegs() {
		if r.TrainingID != trainingID {
			continue
		}
		list = append(list, models.Registrant{
			RegistrationID: r.ID,
			TrainingID:     r.TrainingID,
			MemberID:       r.MemberID,
			MemberName:     s.members[r.MemberID].Name,
			Code:           r.Code,
			Sent:           r.Sent,
		})
	}
	return list, nil
}

func (s *memStore) ListByMember(_ context.Context, memberID int64) ([]models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.Registration
	for _, r := range s.sortedRegs() {
		if r.MemberID == memberID {
			list = append(list, r)
		}
	}
	return list, nil
}

func (s *memStore) RosterRows(_ context.Context, trainingID int64) ([]models.RosterRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.trainings[trainingID]
	if !ok {
		return nil, nil
	}
	var rows []models.RosterRow
	for _, r := range s.sortedRegs() {
		if r.TrainingID != trainingID {
			continue
		}
		m := s.members[r.MemberID]
		rows = append(rows, models.RosterRow{
			TrainingTitle: tr.Title,
			MemberName:    m.Name,
			IdentityNo:    m.IdentityNo,
			Institution:   m.Institution,
			Email:         m.Email,
			Phone:         m.Phone,
			Region:        m.Region,
			Code:          r.Code,
			Sent:          r.Sent,
			RegisteredAt:  r.RegisteredAt,
			CompletedAt:   r.CompletedAt,
		})
	}
	return rows, nil
}

func (s *memStore) MarkSent(_ context.Context, registrationID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[registrationID]
	if !ok {
		return false, nil
	}
	r.Sent = true
	s.regs[registrationID] = r
	return true, nil
}

func (s *memStore) MarkSentFor(ctx context.Context, trainingID, memberID int64) (bool, error) {
	r, _ := s.FindRegistration(ctx, trainingID, memberID)
	if r == nil {
		return false, nil
	}
	return s.MarkSent(ctx, r.ID)
}

func (s *memStore) Delete(_ context.Context, registrationID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regs[registrationID]; !ok {
		return false, nil
	}
	delete(s.regs, registrationID)
	return true, nil
}

func (s *memStore) member(id int64) models.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[id]
}

func (s *memStore) regCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs)
}
