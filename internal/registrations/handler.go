package registrations

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ikatan-anggota/backend/internal/apperr"
	"github.com/ikatan-anggota/backend/internal/middleware"
	"github.com/ikatan-anggota/backend/internal/models"
	"github.com/ikatan-anggota/backend/pkg/queue"
	"github.com/ikatan-anggota/backend/pkg/response"
)

// RegisterRequest is the body for POST /pelatihan/mendaftar-pelatihan.
type RegisterRequest struct {
	TrainingID int64 `json:"pelatihan_id" binding:"required"`
	MemberID   int64 `json:"member_id" binding:"required"`
}

// CompleteRequest is the body for POST /pelatihan/selesai-pelatihan.
type CompleteRequest struct {
	TrainingID int64  `json:"pelatihan_id" binding:"required"`
	Code       string `json:"kode" binding:"required"`
	MemberID   int64  `json:"idMember" binding:"required"`
}

// UncompletedRequest is the body for PUT /pelatihan/update-status/uncompleted.
type UncompletedRequest struct {
	MemberID   int64 `json:"idMember" binding:"required"`
	TrainingID int64 `json:"pelatihanId" binding:"required"`
}

// RegistrantView is one roster line as returned to the admin UI.
type RegistrantView struct {
	Name   string       `json:"nama"`
	Code   string       `json:"kode"`
	Action RosterAction `json:"aksi"`
}

// RosterAction carries the ids the admin UI needs for row actions.
type RosterAction struct {
	DeleteID   int64 `json:"deleteId"`
	SentID     int64 `json:"kirimId"`
	TrainingID int64 `json:"pelatihanId"`
	IsSent     bool  `json:"isKirim"`
}

// ExportJobs enqueues asynchronous roster exports and reports their progress.
type ExportJobs interface {
	EnqueueExport(ctx context.Context, trainingID int64) (string, error)
	ExportStatus(ctx context.Context, jobID string) (*queue.ExportStatus, error)
}

// ExportLinker turns a stored export into a time-limited download URL.
type ExportLinker interface {
	ExportDownloadURL(ctx context.Context, key string) (string, error)
}

// MemberLookup resolves the member record of a logged-in user.
type MemberLookup interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Member, error)
}

// Handler handles training registration HTTP endpoints.
type Handler struct {
	svc     *Service
	members MemberLookup
	jobs    ExportJobs
	links   ExportLinker
	logger  *zap.Logger
}

// NewHandler creates a registrations handler. jobs and links may be nil when the
// export worker is not configured; the async export endpoints then answer 503.
func NewHandler(svc *Service, members MemberLookup, jobs ExportJobs, links ExportLinker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, members: members, jobs: jobs, links: links, logger: logger}
}

// RegisterRoutes mounts the registration endpoints on g, which must already run
// middleware.JWT. Roster management is admin only; the member endpoints check
// that the caller acts for their own member record.
func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	admin := middleware.RequireRole(string(models.RoleAdmin))

	g.POST("/mendaftar-pelatihan", h.Register)
	g.POST("/selesai-pelatihan", h.Complete)
	g.GET("/peserta-pelatihan/kode/:idMember/:idTraining", h.GetCode)
	g.GET("/pelatihan-info/:member_id", h.MemberRegistrations)

	g.PUT("/update-status/uncompleted", admin, h.MarkUncompleted)
	g.GET("/peserta-pelatihan/:id/pendaftar", admin, h.ListRegistrants)
	g.PUT("/peserta/:id/kirim", admin, h.MarkSent)
	g.PUT("/peserta/:id/kirim/:memberId", admin, h.MarkSentFor)
	g.DELETE("/peserta/:id", admin, h.Delete)
	g.GET("/export-peserta/:pelatihanId", admin, h.Export)
	g.POST("/export-peserta/:pelatihanId/jobs", admin, h.EnqueueExport)
	g.GET("/export-jobs/:jobId", admin, h.ExportStatus)
}

// actsFor reports whether the caller may act for memberID: admins always, members
// only for the record linked to their account. It writes the error response itself.
func (h *Handler) actsFor(c *gin.Context, memberID int64) bool {
	if c.GetString(middleware.ContextUserRole) == string(models.RoleAdmin) {
		return true
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return false
	}
	m, err := h.members.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("resolve caller member failed", zap.Error(err), zap.Int64("user_id", userID))
		response.Internal(c, "failed to resolve member")
		return false
	}
	if m == nil || m.ID != memberID {
		h.logger.Warn("member id mismatch", zap.Int64("user_id", userID), zap.Int64("member_id", memberID))
		response.Forbidden(c, "not allowed to act for this member")
		return false
	}
	return true
}

// Register handles POST /pelatihan/mendaftar-pelatihan.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "pelatihan_id and member_id are required")
		return
	}
	if !h.actsFor(c, req.MemberID) {
		return
	}
	res, err := h.svc.Register(c.Request.Context(), req.TrainingID, req.MemberID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, gin.H{
		"message": "registered for " + res.Training.Title,
		"kode":    res.Registration.Code,
		"badge":   res.Badge,
	})
}

// Complete handles POST /pelatihan/selesai-pelatihan.
func (h *Handler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "pelatihan_id, kode and idMember are required")
		return
	}
	if !h.actsFor(c, req.MemberID) {
		return
	}
	ledger, err := h.svc.Complete(c.Request.Context(), req.TrainingID, req.Code, req.MemberID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "training completed", "badge": ledger})
}

// MarkUncompleted handles PUT /pelatihan/update-status/uncompleted.
func (h *Handler) MarkUncompleted(c *gin.Context) {
	var req UncompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "idMember and pelatihanId are required")
		return
	}
	ledger, err := h.svc.MarkUncompleted(c.Request.Context(), req.MemberID, req.TrainingID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "status updated to uncompleted", "updatedBadge": ledger})
}

// ListRegistrants handles GET /pelatihan/peserta-pelatihan/:id/pendaftar.
func (h *Handler) ListRegistrants(c *gin.Context) {
	trainingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListRegistrants(c.Request.Context(), trainingID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]RegistrantView, 0, len(list))
	for _, r := range list {
		out = append(out, RegistrantView{
			Name: r.MemberName,
			Code: r.Code,
			Action: RosterAction{
				DeleteID:   r.RegistrationID,
				SentID:     r.RegistrationID,
				TrainingID: r.TrainingID,
				IsSent:     r.Sent,
			},
		})
	}
	response.OK(c, out)
}

// MarkSent handles PUT /pelatihan/peserta/:id/kirim.
func (h *Handler) MarkSent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.MarkSent(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "code marked as sent"})
}

// MarkSentFor handles PUT /pelatihan/peserta/:id/kirim/:memberId, where id is the training.
func (h *Handler) MarkSentFor(c *gin.Context) {
	trainingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	memberID, ok := paramID(c, "memberId")
	if !ok {
		return
	}
	if err := h.svc.MarkSentFor(c.Request.Context(), trainingID, memberID); err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "code marked as sent"})
}

// Delete handles DELETE /pelatihan/peserta/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteRegistrant(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"message": "registration deleted"})
}

// GetCode handles GET /pelatihan/peserta-pelatihan/kode/:idMember/:idTraining.
func (h *Handler) GetCode(c *gin.Context) {
	memberID, ok := paramID(c, "idMember")
	if !ok {
		return
	}
	trainingID, ok := paramID(c, "idTraining")
	if !ok {
		return
	}
	if !h.actsFor(c, memberID) {
		return
	}
	code, err := h.svc.GetCode(c.Request.Context(), memberID, trainingID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"kode": code})
}

// MemberRegistrations handles GET /pelatihan/pelatihan-info/:member_id.
func (h *Handler) MemberRegistrations(c *gin.Context) {
	memberID, ok := paramID(c, "member_id")
	if !ok || !h.actsFor(c, memberID) {
		return
	}
	list, err := h.svc.MemberRegistrations(c.Request.Context(), memberID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, list)
}

// Export handles GET /pelatihan/export-peserta/:pelatihanId and streams the workbook.
func (h *Handler) Export(c *gin.Context) {
	trainingID, ok := paramID(c, "pelatihanId")
	if !ok {
		return
	}
	b, name, err := h.svc.ExportRoster(c.Request.Context(), trainingID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, SpreadsheetContentType, b)
}

// EnqueueExport handles POST /pelatihan/export-peserta/:pelatihanId/jobs.
func (h *Handler) EnqueueExport(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "export worker is not configured")
		return
	}
	trainingID, ok := paramID(c, "pelatihanId")
	if !ok {
		return
	}
	jobID, err := h.jobs.EnqueueExport(c.Request.Context(), trainingID)
	if err != nil {
		h.logger.Error("enqueue export failed", zap.Error(err), zap.Int64("pelatihan_id", trainingID))
		response.Internal(c, "failed to enqueue export")
		return
	}
	response.Accepted(c, gin.H{"job_id": jobID})
}

// ExportStatus handles GET /pelatihan/export-jobs/:jobId.
func (h *Handler) ExportStatus(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "export worker is not configured")
		return
	}
	st, err := h.jobs.ExportStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.logger.Error("read export status failed", zap.Error(err))
		response.Internal(c, "failed to read export status")
		return
	}
	if st == nil {
		response.NotFound(c, "export job not found")
		return
	}
	out := gin.H{"status": st.Status}
	if st.Error != "" {
		out["error"] = st.Error
	}
	if st.Status == queue.ExportDone && st.ObjectKey != "" && h.links != nil {
		url, err := h.links.ExportDownloadURL(c.Request.Context(), st.ObjectKey)
		if err != nil {
			h.logger.Error("presign export failed", zap.Error(err), zap.String("job_id", st.JobID))
			response.Internal(c, "failed to sign download url")
			return
		}
		out["download_url"] = url
	}
	response.OK(c, out)
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	msg := apperr.Message(err)
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindEntryNotFound:
		response.NotFound(c, msg)
	case apperr.KindDuplicateRegistration:
		response.Conflict(c, msg)
	case apperr.KindInvalidCode:
		response.BadRequest(c, msg)
	case apperr.KindCodeNotSent:
		response.Forbidden(c, msg)
	default:
		response.Internal(c, msg)
	}
}
