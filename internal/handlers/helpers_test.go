package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"nhanz-chat/internal/auth"
	"nhanz-chat/internal/middleware"
)

const testUserID = "11111111-1111-1111-1111-111111111111"

func newTestRouter(withIdentity bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if withIdentity {
		r.Use(func(c *gin.Context) {
			middleware.SetIdentity(c, auth.Identity{UserID: testUserID, Username: "alice"})
			c.Next()
		})
	}
	return r
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeBody(t, rec)
	msg, _ := resp["error"].(string)
	return msg
}
