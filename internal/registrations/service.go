package registrations

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ikatan-anggota/backend/internal/apperr"
	"github.com/ikatan-anggota/backend/internal/badges"
	"github.com/ikatan-anggota/backend/internal/codegen"
	"github.com/ikatan-anggota/backend/internal/metrics"
	"github.com/ikatan-anggota/backend/internal/models"
)

// UnknownMemberName stands in for registrants whose member row no longer exists.
const UnknownMemberName = "Unknown member"

// DefaultRegisterRetries is how often Register restarts after losing a code race.
const DefaultRegisterRetries = 3

// RegisterResult is the outcome of a successful registration.
type RegisterResult struct {
	Registration models.Registration
	Training     models.Training
	Badge        badges.Ledger
}

// Service implements the registration, completion and roster workflows.
type Service struct {
	store      Store
	codes      *codegen.Generator
	metrics    *metrics.Metrics
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxRetries sets how many times Register restarts its transaction after a
// code uniqueness race.
func WithMaxRetries(n int) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates the training workflow service.
func NewService(store Store, codes *codegen.Generator, m *metrics.Metrics, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codes == nil {
		codes = codegen.New(codegen.DefaultMaxAttempts)
	}
	s := &Service{
		store:      store,
		codes:      codes,
		metrics:    m,
		logger:     logger,
		maxRetries: DefaultRegisterRetries,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Register enrolls a member in a training: it issues a unique code, inserts the
// registration row and appends an ongoing entry to the member's badge ledger, all
// in one transaction.
func (s *Service) Register(ctx context.Context, trainingID, memberID int64) (*RegisterResult, error) {
	var (
		res *RegisterResult
		err error
	)
	for attempt := 0; ; attempt++ {
		res, err = s.register(ctx, trainingID, memberID)
		if !apperr.Is(err, apperr.KindCodeConflict) || attempt >= s.maxRetries {
			break
		}
		s.logger.Warn("registration code collided on insert, retrying",
			zap.Int64("pelatihan_id", trainingID), zap.Int64("member_id", memberID), zap.Int("attempt", attempt+1))
	}
	s.metrics.Observe(metrics.WorkflowRegister, err)
	if err != nil {
		s.logFailure("register", err, zap.Int64("pelatihan_id", trainingID), zap.Int64("member_id", memberID))
		return nil, err
	}
	s.logger.Info("member registered for training",
		zap.Int64("pelatihan_id", trainingID), zap.Int64("member_id", memberID), zap.Int64("registration_id", res.Registration.ID))
	return res, nil
}

func (s *Service) register(ctx context.Context, trainingID, memberID int64) (*RegisterResult, error) {
	var res *RegisterResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		training, err := tx.GetTraining(ctx, trainingID)
		if err != nil {
			return err
		}
		if training == nil {
			return apperr.NotFound("training")
		}
		member, err := tx.GetMemberForUpdate(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return apperr.NotFound("member")
		}
		existing, err := tx.FindRegistration(ctx, trainingID, memberID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.DuplicateRegistration(training.Title)
		}

		code, attempts, err := s.codes.Generate(ctx, member.IdentityNo, tx)
		s.metrics.CodeAttempts(attempts)
		if err != nil {
			return err
		}

		now := s.timestamp()
		reg := models.Registration{
			TrainingID:   trainingID,
			MemberID:     memberID,
			Code:         code,
			RegisteredAt: now,
		}
		if err := tx.CreateRegistration(ctx, &reg); err != nil {
			if errors.Is(err, errPairTaken) {
				return apperr.DuplicateRegistration(training.Title)
			}
			return err
		}

		ledger, err := badges.Decode([]byte(member.Badge))
		if err != nil {
			return err
		}
		gen := badges.GenerationKey(member.IdentityNo)
		if _, found := ledger.Find(gen, trainingID); found {
			return apperr.DuplicateRegistration(training.Title)
		}
		ledger.Append(gen, badges.Entry{
			TrainingID:   training.ID,
			Title:        training.Title,
			Description:  training.Description,
			Source:       training.Source,
			Badge:        training.Badge,
			Generation:   gen,
			Status:       badges.StatusOngoing,
			RegisteredAt: now,
		})
		if err := s.saveLedger(ctx, tx, memberID, ledger); err != nil {
			return err
		}
		res = &RegisterResult{Registration: reg, Training: *training, Badge: ledger}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Complete checks the submitted code, stamps the completion time on the
// registration and marks the ledger entry completed with its elapsed duration.
func (s *Service) Complete(ctx context.Context, trainingID int64, code string, memberID int64) (badges.Ledger, error) {
	var ledger badges.Ledger
	err := s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		member, err := tx.GetMemberForUpdate(ctx, memberID)
		if err != nil {
			return err
		}
		reg, err := tx.FindRegistration(ctx, trainingID, memberID)
		if err != nil {
			return err
		}
		if reg == nil || member == nil {
			return apperr.NotFound("registration")
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(reg.Code)) != 1 {
			return apperr.InvalidCode()
		}

		now := s.timestamp()
		if err := tx.SetCompletedAt(ctx, reg.ID, now); err != nil {
			return err
		}

		ledger, err = badges.Decode([]byte(member.Badge))
		if err != nil {
			return err
		}
		gen := badges.GenerationKey(member.IdentityNo)
		idx, found := ledger.Find(gen, trainingID)
		if !found {
			return apperr.EntryNotFound(fmt.Sprintf("no badge entry for training %d in generation %s", trainingID, gen))
		}

		start := ledger[gen][idx].RegisteredAt
		if start.IsZero() {
			start = reg.RegisteredAt
		}
		status := badges.StatusCompleted
		elapsed := badges.Elapsed(start, now)
		if err := ledger.Update(gen, idx, badges.Patch{
			Status:       &status,
			RegisteredAt: &start,
			CompletedAt:  &now,
			Duration:     &elapsed,
		}); err != nil {
			return err
		}
		return s.saveLedger(ctx, tx, memberID, ledger)
	})
	s.metrics.Observe(metrics.WorkflowComplete, err)
	if err != nil {
		s.logFailure("complete", err, zap.Int64("pelatihan_id", trainingID), zap.Int64("member_id", memberID))
		return nil, err
	}
	return ledger, nil
}

// MarkUncompleted sets every ledger entry of the training to uncompleted without
// touching timestamps.
func (s *Service) MarkUncompleted(ctx context.Context, memberID, trainingID int64) (badges.Ledger, error) {
	var ledger badges.Ledger
	err := s.store.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		member, err := tx.GetMemberForUpdate(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return apperr.NotFound("member")
		}
		ledger, err = badges.Decode([]byte(member.Badge))
		if err != nil {
			return err
		}
		locs := ledger.FindAll(trainingID)
		if len(locs) == 0 {
			return apperr.EntryNotFound(fmt.Sprintf("training %d not found in member badges", trainingID))
		}
		status := badges.StatusUncompleted
		for _, loc := range locs {
			if err := ledger.Update(loc.Generation, loc.Index, badges.Patch{Status: &status}); err != nil {
				return err
			}
		}
		return s.saveLedger(ctx, tx, memberID, ledger)
	})
	s.metrics.Observe(metrics.WorkflowUncompleted, err)
	if err != nil {
		s.logFailure("mark uncompleted", err, zap.Int64("pelatihan_id", trainingID), zap.Int64("member_id", memberID))
		return nil, err
	}
	return ledger, nil
}

func (s *Service) saveLedger(ctx context.Context, tx TxStore, memberID int64, ledger badges.Ledger) error {
	raw, err := badges.Encode(ledger)
	if err != nil {
		return err
	}
	return tx.UpdateMemberBadge(ctx, memberID, raw)
}

// ListRegistrants returns the roster of a training.
func (s *Service) ListRegistrants(ctx context.Context, trainingID int64) ([]models.Registrant, error) {
	list, err := s.store.ListRegistrants(ctx, trainingID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].MemberName == "" {
			list[i].MemberName = UnknownMemberName
		}
	}
	return list, nil
}

// MarkSent flags a registration's code as delivered. Repeating it is a no-op.
func (s *Service) MarkSent(ctx context.Context, registrationID int64) error {
	ok, err := s.store.MarkSent(ctx, registrationID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("registration")
	}
	return nil
}

// MarkSentFor is MarkSent addressed by training and member.
func (s *Service) MarkSentFor(ctx context.Context, trainingID, memberID int64) error {
	ok, err := s.store.MarkSentFor(ctx, trainingID, memberID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("registration")
	}
	return nil
}

// DeleteRegistrant removes a registration row. The member's badge entry stays.
func (s *Service) DeleteRegistrant(ctx context.Context, registrationID int64) error {
	ok, err := s.store.Delete(ctx, registrationID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("registration")
	}
	s.logger.Info("registration deleted", zap.Int64("registration_id", registrationID))
	return nil
}

// GetCode returns the member's code once an administrator has marked it sent.
func (s *Service) GetCode(ctx context.Context, memberID, trainingID int64) (string, error) {
	reg, err := s.store.FindRegistration(ctx, trainingID, memberID)
	if err != nil {
		return "", err
	}
	if reg == nil {
		return "", apperr.NotFound("registration")
	}
	if !reg.Sent {
		return "", apperr.CodeNotSent()
	}
	return reg.Code, nil
}

// MemberRegistrations lists the registrations of one member.
func (s *Service) MemberRegistrations(ctx context.Context, memberID int64) ([]models.Registration, error) {
	list, err := s.store.ListByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, apperr.NotFound("registration")
	}
	return list, nil
}

// ExportRoster builds the roster spreadsheet of a training and its file name.
func (s *Service) ExportRoster(ctx context.Context, trainingID int64) ([]byte, string, error) {
	rows, err := s.store.RosterRows(ctx, trainingID)
	if err != nil {
		s.metrics.Observe(metrics.WorkflowExport, err)
		return nil, "", err
	}
	if len(rows) == 0 {
		err := apperr.NotFound("training registrants")
		s.metrics.Observe(metrics.WorkflowExport, err)
		return nil, "", err
	}
	b, err := BuildRosterWorkbook(rows)
	s.metrics.Observe(metrics.WorkflowExport, err)
	if err != nil {
		return nil, "", err
	}
	return b, ExportFileName(trainingID), nil
}

func (s *Service) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
	switch apperr.KindOf(err) {
	case apperr.KindEntryNotFound, apperr.KindBadgeDecode, apperr.KindInfrastructure, apperr.KindCodeConflict:
		s.logger.Error(op+" failed", fields...)
	default:
		s.logger.Warn(op+" rejected", fields...)
	}
}
