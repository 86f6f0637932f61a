package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikatan-anggota/backend/internal/models"
)

type memUsers struct {
	byEmail map[string]*models.User
	nextID  int64
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return m.byEmail[email], nil
}

func (m *memUsers) Create(_ context.Context, email, hash, name string, role models.Role) (*models.User, error) {
	if _, ok := m.byEmail[email]; ok {
		return nil, ErrEmailTaken
	}
	m.nextID++
	u := &models.User{ID: m.nextID, Email: email, Password: hash, Name: name, Role: role}
	m.byEmail[email] = u
	return u, nil
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	users := &memUsers{byEmail: map[string]*models.User{}}
	jwtSvc := NewJWTService("secret", 1)
	h := NewHandler(users, jwtSvc, nil)
	r := gin.New()
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	w := post(t, r, "/auth/register", gin.H{"email": "Sari@Example.org", "password": "rahasia1", "nama": "Sari"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"member"`)
	assert.NotContains(t, w.Body.String(), "rahasia1")

	w = post(t, r, "/auth/register", gin.H{"email": "sari@example.org", "password": "rahasia1", "nama": "Sari"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = post(t, r, "/auth/register", gin.H{"email": "budi@example.org", "password": "123", "nama": "Budi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, r, "/auth/login", gin.H{"email": "sari@example.org", "password": "salah"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(t, r, "/auth/login", gin.H{"email": "nobody@example.org", "password": "rahasia1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(t, r, "/auth/login", gin.H{"email": "sari@example.org", "password": "rahasia1"})
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data TokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	claims, err := jwtSvc.Validate(env.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.UserID)
	assert.Equal(t, string(models.RoleMember), claims.Role)
}
