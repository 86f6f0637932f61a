package members

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ikatan-anggota/backend/internal/apperr"
	"github.com/ikatan-anggota/backend/internal/badges"
	"github.com/ikatan-anggota/backend/internal/middleware"
	"github.com/ikatan-anggota/backend/internal/models"
	"github.com/ikatan-anggota/backend/pkg/response"
)

// Finder looks up the member of a user account.
type Finder interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Member, error)
}

// BadgeView is a member's current-generation badges.
type BadgeView struct {
	MemberID   int64          `json:"member_id"`
	IdentityNo string         `json:"no_identitas"`
	Badge      []badges.Entry `json:"badge"`
}

// Handler serves member lookups for the training pages.
type Handler struct {
	repo   Finder
	logger *zap.Logger
}

// NewHandler creates a member handler.
func NewHandler(repo Finder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the badge lookup on a JWT-protected group. Members may
// only read their own account's badges.
func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	g.GET("/members/id/:user_id", middleware.RequireSelfOrRole("user_id", string(models.RoleAdmin)), h.Badges)
}

// CurrentBadges returns the member of userID with the entries of its own generation.
// A ledger that cannot be decoded is an error, never an empty list.
func CurrentBadges(ctx context.Context, repo Finder, userID int64) (*BadgeView, error) {
	m, err := repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound("member")
	}
	ledger, err := badges.Decode([]byte(m.Badge))
	if err != nil {
		return nil, err
	}
	return &BadgeView{
		MemberID:   m.ID,
		IdentityNo: m.IdentityNo,
		Badge:      ledger.Entries(badges.GenerationKey(m.IdentityNo)),
	}, nil
}

// Badges handles GET /pelatihan/members/id/:user_id.
func (h *Handler) Badges(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		response.BadRequest(c, "invalid user_id")
		return
	}
	view, err := CurrentBadges(c.Request.Context(), h.repo, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			response.NotFound(c, apperr.Message(err))
			return
		}
		h.logger.Error("load member badges failed", zap.Error(err), zap.Int64("user_id", userID))
		response.Internal(c, apperr.Message(err))
		return
	}
	response.OK(c, view)
}
