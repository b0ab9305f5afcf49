package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, fn func(c *gin.Context)) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fn(c)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSuccess(t *testing.T) {
	w, resp := record(t, func(c *gin.Context) {
		Success(c, 0, "done", gin.H{"points": 150})
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, resp.Success)
	require.Equal(t, "done", resp.Message)
	require.NotNil(t, resp.Data)
	require.Empty(t, resp.Error)
}

func TestError(t *testing.T) {
	w, resp := record(t, func(c *gin.Context) {
		Error(c, http.StatusConflict, "failed to apply bill loyalty", errors.New("duplicate entry"))
		require.True(t, c.IsAborted())
	})

	require.Equal(t, http.StatusConflict, w.Code)
	require.False(t, resp.Success)
	require.Equal(t, "failed to apply bill loyalty", resp.Message)
	require.Equal(t, "duplicate entry", resp.Error)
}
