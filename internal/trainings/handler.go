package trainings

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ikatan-anggota/backend/internal/middleware"
	"github.com/ikatan-anggota/backend/internal/models"
	"github.com/ikatan-anggota/backend/pkg/response"
)

// Store is the persistence the handler needs.
type Store interface {
	Create(ctx context.Context, t *models.Training) error
	GetByID(ctx context.Context, id int64) (*models.Training, error)
	List(ctx context.Context) ([]models.Training, error)
	Update(ctx context.Context, t *models.Training) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// SaveRequest is the body for POST /admin/pelatihan/tambah and PUT /admin/pelatihan/edit/:id.
type SaveRequest struct {
	Title          string `json:"judul_pelatihan" binding:"required"`
	StartsAt       string `json:"tanggal_pelatihan" binding:"required"`
	EndsAt         string `json:"tanggal_berakhir" binding:"required"`
	Description    string `json:"deskripsi_pelatihan" binding:"required"`
	Link           string `json:"link" binding:"required"`
	Source         string `json:"sumber"`
	Badge          string `json:"badge"`
	CompletionCode string `json:"kode"`
}

func (r SaveRequest) toModel() (*models.Training, string) {
	startsAt, err := parseTime(r.StartsAt)
	if err != nil {
		return nil, "invalid tanggal_pelatihan"
	}
	endsAt, err := parseTime(r.EndsAt)
	if err != nil {
		return nil, "invalid tanggal_berakhir"
	}
	if endsAt.Before(startsAt) {
		return nil, "tanggal_berakhir must not be before tanggal_pelatihan"
	}
	return &models.Training{
		Title:          r.Title,
		Description:    r.Description,
		Source:         r.Source,
		StartsAt:       startsAt,
		EndsAt:         endsAt,
		Badge:          r.Badge,
		CompletionCode: r.CompletionCode,
		Link:           r.Link,
	}, ""
}

// RegisterRoutes mounts the single-training read on catalogue and the CRUD
// endpoints on admin. Both groups must already run middleware.JWT.
func RegisterRoutes(catalogue, admin *gin.RouterGroup, h *Handler) {
	catalogue.GET("/:id", h.GetByID)

	admin.Use(middleware.RequireRole(string(models.RoleAdmin)))
	admin.GET("", h.List)
	admin.POST("/tambah", h.Create)
	admin.PUT("/edit/:id", h.Update)
	admin.DELETE("/delete/:id", h.Delete)
}

// parseTime accepts RFC 3339 or a bare date.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// Handler handles training catalogue endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
}

// NewHandler creates a training handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /admin/pelatihan.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list trainings failed", zap.Error(err))
		response.Internal(c, "failed to list trainings")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /pelatihan/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	t, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get training failed", zap.Error(err), zap.Int64("pelatihan_id", id))
		response.Internal(c, "failed to get training")
		return
	}
	if t == nil {
		response.NotFound(c, "training not found")
		return
	}
	response.OK(c, t)
}

// Create handles POST /admin/pelatihan/tambah.
func (h *Handler) Create(c *gin.Context) {
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "all fields are required")
		return
	}
	t, msg := req.toModel()
	if t == nil {
		response.BadRequest(c, msg)
		return
	}
	if err := h.repo.Create(c.Request.Context(), t); err != nil {
		h.logger.Error("create training failed", zap.Error(err))
		response.Internal(c, "failed to create training")
		return
	}
	response.Created(c, gin.H{"message": "training created", "id": t.ID})
}

// Update handles PUT /admin/pelatihan/edit/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "all fields are required")
		return
	}
	t, msg := req.toModel()
	if t == nil {
		response.BadRequest(c, msg)
		return
	}
	t.ID = id
	found, err := h.repo.Update(c.Request.Context(), t)
	if err != nil {
		h.logger.Error("update training failed", zap.Error(err), zap.Int64("pelatihan_id", id))
		response.Internal(c, "failed to update training")
		return
	}
	if !found {
		response.NotFound(c, "training not found")
		return
	}
	response.OK(c, gin.H{"message": "training updated"})
}

// Delete handles DELETE /admin/pelatihan/delete/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	found, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete training failed", zap.Error(err), zap.Int64("pelatihan_id", id))
		response.Internal(c, "failed to delete training")
		return
	}
	if !found {
		response.NotFound(c, "training not found")
		return
	}
	response.OK(c, gin.H{"message": "training deleted"})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid training id")
		return 0, false
	}
	return id, true
}
