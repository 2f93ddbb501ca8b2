package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nhanz-chat/internal/auth"
	"nhanz-chat/internal/mocks"
	"nhanz-chat/internal/models"
	"nhanz-chat/internal/repositories"
)

func setupAuthRouter(users *mocks.UserRepositoryMock, withIdentity bool) (*gin.Engine, *auth.PasswordHasher, *auth.TokenManager) {
	hasher := auth.NewPasswordHasher(4)
	tokens := auth.NewTokenManager("test-secret", time.Hour, "test")
	handler := NewAuthHandler(users, hasher, tokens, nil, zerolog.Nop())

	r := newTestRouter(withIdentity)
	r.POST("/api/auth/register", handler.Register)
	r.POST("/api/auth/login", handler.Login)
	r.POST("/api/auth/change-password", handler.ChangePassword)
	return r, hasher, tokens
}

func TestRegisterSuccess(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router, hasher, tokens := setupAuthRouter(users, false)

	users.On("UsernameTaken", mock.Anything, "alice").Return(false, nil).Once()
	users.On("EmailTaken", mock.Anything, "alice@example.com").Return(false, nil).Once()
	users.On("Create", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Username == "alice" && u.Email == "alice@example.com" && hasher.Verify("secret123", u.PasswordHash)
	})).Return(models.User{ID: testUserID, Username: "alice", Email: "alice@example.com", Name: "Alice", PasswordHash: "stored"}, nil).Once()

	rec := doJSON(router, http.MethodPost, "/api/auth/register",
		`{"username":"alice","name":"Alice","email":"Alice@Example.com","password":"secret123"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "stored")
	resp := decodeBody(t, rec)
	identity, err := tokens.Validate(resp["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, testUserID, identity.UserID)
	assert.Equal(t, "alice", resp["user"].(map[string]any)["username"])
	users.AssertExpectations(t)
}

func TestRegisterConflicts(t *testing.T) {
	t.Run("username", func(t *testing.T) {
		users := new(mocks.UserRepositoryMock)
		router, _, _ := setupAuthRouter(users, false)
		users.On("UsernameTaken", mock.Anything, "alice").Return(true, nil).Once()

		rec := doJSON(router, http.MethodPost, "/api/auth/register",
			`{"username":"alice","name":"Alice","email":"a@example.com","password":"secret123"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "username already taken", errorMessage(t, rec))
		users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("email", func(t *testing.T) {
		users := new(mocks.UserRepositoryMock)
		router, _, _ := setupAuthRouter(users, false)
		users.On("UsernameTaken", mock.Anything, "bob").Return(false, nil).Once()
		users.On("EmailTaken", mock.Anything, "a@example.com").Return(true, nil).Once()

		rec := doJSON(router, http.MethodPost, "/api/auth/register",
			`{"username":"bob","name":"Bob","email":"a@example.com","password":"secret123"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "email already registered", errorMessage(t, rec))
	})

	t.Run("constraint race", func(t *testing.T) {
		users := new(mocks.UserRepositoryMock)
		router, _, _ := setupAuthRouter(users, false)
		users.On("UsernameTaken", mock.Anything, "bob").Return(false, nil).Once()
		users.On("EmailTaken", mock.Anything, "b@example.com").Return(false, nil).Once()
		users.On("Create", mock.Anything, mock.Anything).Return(models.User{}, repositories.ErrEmailTaken).Once()

		rec := doJSON(router, http.MethodPost, "/api/auth/register",
			`{"username":"bob","name":"Bob","email":"b@example.com","password":"secret123"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "email already registered", errorMessage(t, rec))
	})
}

func TestRegisterValidation(t *testing.T) {
	router, _, _ := setupAuthRouter(new(mocks.UserRepositoryMock), false)

	cases := map[string]struct {
		body string
		want string
	}{
		"short username": {`{"username":"al","name":"A","email":"a@example.com","password":"secret123"}`, "username must be at least 3 characters"},
		"uppercase":      {`{"username":"Alice","name":"A","email":"a@example.com","password":"secret123"}`, "username must be lowercase alphanumeric"},
		"bad email":      {`{"username":"alice","name":"A","email":"nope","password":"secret123"}`, "Invalid email address"},
		"short password": {`{"username":"alice","name":"A","email":"a@example.com","password":"123"}`, "password must be at least 6 characters"},
		"missing name":   {`{"username":"alice","email":"a@example.com","password":"secret123"}`, "name is required"},
		"not json":       {`{`, "request body is not valid JSON"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(router, http.MethodPost, "/api/auth/register", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, errorMessage(t, rec))
		})
	}
}

func TestLogin(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router, hasher, _ := setupAuthRouter(users, false)
	hash, err := hasher.Hash("secret123")
	require.NoError(t, err)

	stored := models.User{ID: testUserID, Username: "alice", Email: "alice@example.com", PasswordHash: hash}
	users.On("GetByEmail", mock.Anything, "alice@example.com").Return(stored, nil)
	users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(models.User{}, repositories.ErrUserNotFound)

	rec := doJSON(router, http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody(t, rec)
	assert.NotEmpty(t, resp["token"])

	wrongPassword := doJSON(router, http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"nope-nope"}`)
	unknownEmail := doJSON(router, http.MethodPost, "/api/auth/login", `{"email":"ghost@example.com","password":"secret123"}`)

	assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
	assert.Equal(t, wrongPassword.Code, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
	assert.JSONEq(t, `{"error":"invalid credentials"}`, unknownEmail.Body.String())
}

func TestLoginStoreError(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router, _, _ := setupAuthRouter(users, false)
	users.On("GetByEmail", mock.Anything, "alice@example.com").Return(models.User{}, assert.AnError).Once()

	rec := doJSON(router, http.MethodPost, "/api/auth/login", `{"email":"alice@example.com","password":"secret123"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to login", errorMessage(t, rec))
}

func TestChangePassword(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	router, hasher, _ := setupAuthRouter(users, true)
	hash, err := hasher.Hash("secret123")
	require.NoError(t, err)

	users.On("GetByID", mock.Anything, testUserID).Return(models.User{ID: testUserID, PasswordHash: hash}, nil)
	users.On("UpdatePasswordHash", mock.Anything, testUserID, mock.MatchedBy(func(h string) bool {
		return hasher.Verify("newsecret", h)
	})).Return(nil).Once()

	rec := doJSON(router, http.MethodPost, "/api/auth/change-password", `{"currentPassword":"secret123","newPassword":"newsecret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/auth/change-password", `{"currentPassword":"wrong-one","newPassword":"newsecret"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "current password is incorrect", errorMessage(t, rec))
	users.AssertExpectations(t)
}

func TestChangePasswordRequiresIdentity(t *testing.T) {
	router, _, _ := setupAuthRouter(new(mocks.UserRepositoryMock), false)

	rec := doJSON(router, http.MethodPost, "/api/auth/change-password", `{"currentPassword":"secret123","newPassword":"newsecret"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
