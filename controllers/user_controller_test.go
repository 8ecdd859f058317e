package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/marketplace-orders/config"
	"github.com/kendall-kelly/marketplace-orders/internal/testutil"
	"github.com/kendall-kelly/marketplace-orders/models"
	"github.com/kendall-kelly/marketplace-orders/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	return testutil.OpenTestDB(t)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// mockAuthMiddleware simulates the Auth0 JWT middleware for testing
func mockAuthMiddleware(auth0ID, role, accessToken string) gin.HandlerFunc {
	return testutil.MockAuthMiddleware(auth0ID, role, accessToken)
}

// useMockAuth0 points the Auth0 service at a fake /userinfo that answers for token
func useMockAuth0(t *testing.T, token string, info services.Auth0UserInfo) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/userinfo" || strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	}))
	t.Cleanup(server.Close)

	original := config.GetConfig()
	t.Cleanup(func() { config.SetConfig(original) })
	config.SetConfig(&config.Config{Auth0Domain: server.URL})
}

func serveJSON(router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]any
	json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

func errorCodeOf(response map[string]any) string {
	if e, ok := response["error"].(map[string]any); ok {
		code, _ := e["code"].(string)
		return code
	}
	return ""
}

func TestCreateUser(t *testing.T) {
	existing := models.User{Auth0ID: "auth0|taken", Name: "Taken", Email: "taken@example.com", Role: models.RoleBuyer}

	tests := []struct {
		name       string
		auth0ID    string
		info       services.Auth0UserInfo
		claimRole  string
		body       string
		seed       bool
		wantStatus int
		wantCode   string
		wantRole   string
	}{
		{
			name:       "defaults to buyer",
			auth0ID:    "auth0|new",
			info:       services.Auth0UserInfo{Email: "new@example.com", Name: "New User"},
			wantStatus: http.StatusCreated,
			wantRole:   models.RoleBuyer,
		},
		{
			name:       "role from body",
			auth0ID:    "auth0|body",
			info:       services.Auth0UserInfo{Email: "body@example.com", Name: "Body Role", PhoneNumber: "555-0101"},
			body:       `{"role":"seller"}`,
			wantStatus: http.StatusCreated,
			wantRole:   models.RoleSeller,
		},
		{
			name:       "claim role wins over body",
			auth0ID:    "auth0|claim",
			info:       services.Auth0UserInfo{Email: "claim@example.com", Name: "Claim Role"},
			claimRole:  models.RoleAdmin,
			body:       `{"role":"buyer"}`,
			wantStatus: http.StatusCreated,
			wantRole:   models.RoleAdmin,
		},
		{
			name:       "admin cannot be requested in the body",
			auth0ID:    "auth0|admin",
			info:       services.Auth0UserInfo{Email: "admin@example.com", Name: "Would-be Admin"},
			body:       `{"role":"admin"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "missing email",
			auth0ID:    "auth0|noemail",
			info:       services.Auth0UserInfo{Name: "No Email"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_EMAIL",
		},
		{
			name:       "missing name",
			auth0ID:    "auth0|noname",
			info:       services.Auth0UserInfo{Email: "noname@example.com"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MISSING_NAME",
		},
		{
			name:       "duplicate auth0 id",
			auth0ID:    existing.Auth0ID,
			info:       services.Auth0UserInfo{Email: "second@example.com", Name: "Second"},
			seed:       true,
			wantStatus: http.StatusConflict,
			wantCode:   "USER_EXISTS",
		},
		{
			name:       "duplicate email",
			auth0ID:    "auth0|second",
			info:       services.Auth0UserInfo{Email: existing.Email, Name: "Second"},
			seed:       true,
			wantStatus: http.StatusConflict,
			wantCode:   "USER_EXISTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			config.SetDB(db)
			if tt.seed {
				seeded := existing
				require.NoError(t, db.Create(&seeded).Error)
			}

			token := "token-" + tt.auth0ID
			info := tt.info
			info.Sub = tt.auth0ID
			useMockAuth0(t, token, info)

			router := setupTestRouter()
			router.POST("/users", mockAuthMiddleware(tt.auth0ID, tt.claimRole, token), CreateUser)

			w, response := serveJSON(router, http.MethodPost, "/users", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, false, response["success"])
				assert.Equal(t, tt.wantCode, errorCodeOf(response))

				var count int64
				db.Model(&models.User{}).Where("auth0_id = ?", tt.auth0ID).Where("email = ?", tt.info.Email).Count(&count)
				assert.Zero(t, count, "no user is created")
				return
			}

			data := response["data"].(map[string]any)
			assert.Equal(t, tt.auth0ID, data["auth0_id"])
			assert.Equal(t, tt.info.Email, data["email"])
			assert.Equal(t, tt.info.Name, data["name"])
			assert.Equal(t, tt.wantRole, data["role"])
			if tt.info.PhoneNumber != "" {
				assert.Equal(t, tt.info.PhoneNumber, data["phone"])
			}
		})
	}
}

func TestGetMyProfile(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)
	testutil.SeedUser(t, db, "auth0|testuser", "Test User", models.RoleSeller)

	router := setupTestRouter()
	router.GET("/me", mockAuthMiddleware("auth0|testuser", "", "token"), GetMyProfile)
	router.GET("/ghost", mockAuthMiddleware("auth0|nobody", "", "token"), GetMyProfile)

	w, response := serveJSON(router, http.MethodGet, "/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := response["data"].(map[string]any)
	assert.Equal(t, "Test User", data["name"])
	assert.Equal(t, "test.user@example.com", data["email"])
	assert.Equal(t, models.RoleSeller, data["role"])

	w, response = serveJSON(router, http.MethodGet, "/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "USER_NOT_FOUND", errorCodeOf(response))
}

func TestUpdateMyProfile(t *testing.T) {
	tests := []struct {
		name       string
		auth0ID    string
		body       string
		wantStatus int
		wantCode   string
		wantName   string
		wantEmail  string
		wantPhone  string
	}{
		{"updates every field", "auth0|me", `{"name":"New Name","email":"new@example.com","phone":"555-0199"}`, http.StatusOK, "", "New Name", "new@example.com", "555-0199"},
		{"partial update keeps the rest", "auth0|me", `{"name":"Only Name"}`, http.StatusOK, "", "Only Name", "me@example.com", ""},
		{"empty update returns the profile", "auth0|me", `{}`, http.StatusOK, "", "Me", "me@example.com", ""},
		{"invalid email", "auth0|me", `{"email":"invalid-email"}`, http.StatusBadRequest, "VALIDATION_ERROR", "", "", ""},
		{"email taken by another user", "auth0|me", `{"email":"other@example.com"}`, http.StatusConflict, "EMAIL_EXISTS", "", "", ""},
		{"unknown user", "auth0|nobody", `{"name":"Ghost"}`, http.StatusNotFound, "USER_NOT_FOUND", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			config.SetDB(db)
			testutil.SeedUser(t, db, "auth0|me", "Me", models.RoleBuyer)
			testutil.SeedUser(t, db, "auth0|other", "Other", models.RoleBuyer)

			router := setupTestRouter()
			router.PUT("/users/me", mockAuthMiddleware(tt.auth0ID, "", "token"), UpdateMyProfile)

			w, response := serveJSON(router, http.MethodPut, "/users/me", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCodeOf(response))
				return
			}

			data := response["data"].(map[string]any)
			assert.Equal(t, tt.wantName, data["name"])
			assert.Equal(t, tt.wantEmail, data["email"])
			if tt.wantPhone != "" {
				assert.Equal(t, tt.wantPhone, data["phone"])
			}
		})
	}
}
