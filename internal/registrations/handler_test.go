package registrations

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikatan-anggota/backend/internal/auth"
	"github.com/ikatan-anggota/backend/internal/middleware"
	"github.com/ikatan-anggota/backend/internal/models"
	"github.com/ikatan-anggota/backend/pkg/queue"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type stubJobs struct {
	status *queue.ExportStatus
}

func (s *stubJobs) EnqueueExport(_ context.Context, trainingID int64) (string, error) {
	return "job-" + strconv.FormatInt(trainingID, 10), nil
}

func (s *stubJobs) ExportStatus(_ context.Context, jobID string) (*queue.ExportStatus, error) {
	if s.status == nil || s.status.JobID != jobID {
		return nil, nil
	}
	return s.status, nil
}

type stubLinks struct{}

func (stubLinks) ExportDownloadURL(_ context.Context, key string) (string, error) {
	return "https://signed.example/" + key, nil
}

// memberLookup maps user accounts to member records.
type memberLookup map[int64]*models.Member

func (l memberLookup) GetByUserID(_ context.Context, userID int64) (*models.Member, error) {
	return l[userID], nil
}

const (
	adminUserID    = 1
	memberUserID   = 5
	intruderUserID = 999
)

type testAPI struct {
	router   *gin.Engine
	admin    string
	member   string
	intruder string
}

func newTestAPI(t *testing.T, s *memStore, jobs ExportJobs) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, _ := newTestService(t, s)
	lookup := memberLookup{
		memberUserID:   {ID: memberID, IdentityNo: "IKA-0042-25"},
		intruderUserID: {ID: 43, IdentityNo: "IKA-0043-25"},
	}
	h := NewHandler(svc, lookup, jobs, stubLinks{}, nil)

	jwtSvc := auth.NewJWTService("test-secret", 1)
	r := gin.New()
	RegisterRoutes(r.Group("/pelatihan", middleware.JWT(jwtSvc)), h)

	token := func(userID int64, role models.Role) string {
		tok, err := jwtSvc.Generate(userID, "user@example.org", string(role))
		require.NoError(t, err)
		return tok
	}
	return &testAPI{
		router:   r,
		admin:    token(adminUserID, models.RoleAdmin),
		member:   token(memberUserID, models.RoleMember),
		intruder: token(intruderUserID, models.RoleMember),
	}
}

func do(t *testing.T, r http.Handler, token, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHandler_RegisterCompleteFlow(t *testing.T) {
	api := newTestAPI(t, seededStore(), nil)
	r := api.router

	w, env := do(t, r, api.member, http.MethodPost, "/pelatihan/mendaftar-pelatihan", gin.H{"pelatihan_id": 7, "member_id": 42})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg struct {
		Message string                                `json:"message"`
		Code    string                                `json:"kode"`
		Badge   map[string]map[string]json.RawMessage `json:"badge"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	assert.NotEmpty(t, reg.Code)
	assert.Contains(t, reg.Badge["25"], "0")

	w, env = do(t, r, api.member, http.MethodPost, "/pelatihan/mendaftar-pelatihan", gin.H{"pelatihan_id": 7, "member_id": 42})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already registered in Dasar Kepemimpinan", env.Error)

	w, env = do(t, r, api.member, http.MethodPost, "/pelatihan/selesai-pelatihan", gin.H{"pelatihan_id": 7, "kode": "wrong", "idMember": 42})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, env.Error, reg.Code)

	w, env = do(t, r, api.member, http.MethodPost, "/pelatihan/selesai-pelatihan", gin.H{"pelatihan_id": 7, "kode": reg.Code, "idMember": 42})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"status":"completed"`)

	w, _ = do(t, r, api.member, http.MethodPut, "/pelatihan/update-status/uncompleted", gin.H{"idMember": 42, "pelatihanId": 7})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = do(t, r, api.admin, http.MethodPut, "/pelatihan/update-status/uncompleted", gin.H{"idMember": 42, "pelatihanId": 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"updatedBadge"`)
	assert.Contains(t, string(env.Data), `"status":"uncompleted"`)
}

func TestHandler_MemberCannotActForAnotherMember(t *testing.T) {
	s := seededStore()
	api := newTestAPI(t, s, nil)
	r := api.router

	w, env := do(t, r, api.member, http.MethodPost, "/pelatihan/mendaftar-pelatihan", gin.H{"pelatihan_id": 7, "member_id": 42})
	require.Equal(t, http.StatusCreated, w.Code)
	var reg struct {
		Code string `json:"kode"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))

	w, env = do(t, r, api.admin, http.MethodGet, "/pelatihan/peserta-pelatihan/7/pendaftar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roster []RegistrantView
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	require.Len(t, roster, 1)
	w, _ = do(t, r, api.admin, http.MethodPut, "/pelatihan/peserta/"+strconv.FormatInt(roster[0].Action.SentID, 10)+"/kirim", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, r, api.intruder, http.MethodGet, "/pelatihan/peserta-pelatihan/kode/42/7", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), reg.Code)

	w, _ = do(t, r, api.intruder, http.MethodGet, "/pelatihan/pelatihan-info/42", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, r, api.intruder, http.MethodPost, "/pelatihan/selesai-pelatihan", gin.H{"pelatihan_id": 7, "kode": reg.Code, "idMember": 42})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, s.find(7, 42).CompletedAt)

	w, _ = do(t, r, api.intruder, http.MethodPost, "/pelatihan/mendaftar-pelatihan", gin.H{"pelatihan_id": 7, "member_id": 42})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, r, "", http.MethodGet, "/pelatihan/peserta-pelatihan/kode/42/7", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = do(t, r, api.member, http.MethodGet, "/pelatihan/peserta-pelatihan/kode/42/7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), reg.Code)

	w, _ = do(t, r, api.admin, http.MethodGet, "/pelatihan/pelatihan-info/42", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_Validation(t *testing.T) {
	api := newTestAPI(t, seededStore(), nil)
	r := api.router

	w, _ := do(t, r, api.member, http.MethodPost, "/pelatihan/mendaftar-pelatihan", gin.H{"pelatihan_id": 7})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, api.admin, http.MethodGet, "/pelatihan/peserta-pelatihan/abc/pendaftar", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := do(t, r, api.member, http.MethodPost, "/pelatihan/mendaftar-pelatihan", gin.H{"pelatihan_id": 8, "member_id": 42})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "training not found", env.Error)
}

func TestHandler_RosterSentAndCode(t *testing.T) {
	api := newTestAPI(t, seededStore(), nil)
	r := api.router

	w, _ := do(t, r, api.member, http.MethodPost, "/pelatihan/mendaftar-pelatihan", gin.H{"pelatihan_id": 7, "member_id": 42})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := do(t, r, api.member, http.MethodGet, "/pelatihan/peserta-pelatihan/kode/42/7", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "code has not been sent yet", env.Error)

	w, _ = do(t, r, api.member, http.MethodGet, "/pelatihan/peserta-pelatihan/7/pendaftar", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = do(t, r, api.admin, http.MethodGet, "/pelatihan/peserta-pelatihan/7/pendaftar", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roster []RegistrantView
	require.NoError(t, json.Unmarshal(env.Data, &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, "Sari Wulandari", roster[0].Name)
	assert.False(t, roster[0].Action.IsSent)
	assert.Equal(t, int64(7), roster[0].Action.TrainingID)

	id := strconv.FormatInt(roster[0].Action.SentID, 10)
	w, _ = do(t, r, api.member, http.MethodPut, "/pelatihan/peserta/"+id+"/kirim", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = do(t, r, api.admin, http.MethodPut, "/pelatihan/peserta/"+id+"/kirim", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, api.admin, http.MethodPut, "/pelatihan/peserta/"+id+"/kirim", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, api.admin, http.MethodPut, "/pelatihan/peserta/7/kirim/42", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, api.admin, http.MethodPut, "/pelatihan/peserta/7/kirim/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(t, r, api.member, http.MethodGet, "/pelatihan/peserta-pelatihan/kode/42/7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), roster[0].Code)

	w, _ = do(t, r, api.admin, http.MethodDelete, "/pelatihan/peserta/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, api.admin, http.MethodDelete, "/pelatihan/peserta/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Export(t *testing.T) {
	api := newTestAPI(t, seededStore(), nil)
	r := api.router

	w, _ := do(t, r, api.admin, http.MethodGet, "/pelatihan/export-peserta/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, api.member, http.MethodPost, "/pelatihan/mendaftar-pelatihan", gin.H{"pelatihan_id": 7, "member_id": 42})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = do(t, r, api.member, http.MethodGet, "/pelatihan/export-peserta/7", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, r, api.admin, http.MethodGet, "/pelatihan/export-peserta/7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, SpreadsheetContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "peserta-pelatihan-7.xlsx")
	assert.NotZero(t, w.Body.Len())
}

func TestHandler_ExportJobs(t *testing.T) {
	noJobs := newTestAPI(t, seededStore(), nil)
	w, _ := do(t, noJobs.router, noJobs.admin, http.MethodPost, "/pelatihan/export-peserta/7/jobs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	jobs := &stubJobs{}
	api := newTestAPI(t, seededStore(), jobs)
	r := api.router

	w, env := do(t, r, api.admin, http.MethodPost, "/pelatihan/export-peserta/7/jobs", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"job_id":"job-7"}`, string(env.Data))

	w, _ = do(t, r, api.admin, http.MethodGet, "/pelatihan/export-jobs/job-7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	jobs.status = &queue.ExportStatus{JobID: "job-7", TrainingID: 7, Status: queue.ExportDone, ObjectKey: "exports/pelatihan/7/job-7.xlsx"}
	w, env = do(t, r, api.admin, http.MethodGet, "/pelatihan/export-jobs/job-7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"done","download_url":"https://signed.example/exports/pelatihan/7/job-7.xlsx"}`, string(env.Data))
}
