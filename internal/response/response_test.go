package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchqc/internal/models"
	"batchqc/internal/response"
)

func TestRedirectThenRenderConsumesFlash(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/report/1", nil)
	response.Redirect(w, r, "/choose_batch", response.Danger("Партия не найдена"))

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/choose_batch", w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	next := httptest.NewRequest(http.MethodGet, "/choose_batch", nil)
	next.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	response.Render(w, next, http.StatusOK, map[string]string{"batch_date": ""}, response.Info("extra"))

	var body models.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []models.Notice{
		{Category: models.NoticeDanger, Message: "Партия не найдена"},
		{Category: models.NoticeInfo, Message: "extra"},
	}, body.Notices)

	cleared := w.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, response.FlashCookie, cleared[0].Name)
	assert.True(t, cleared[0].MaxAge < 0)
}

func TestRedirectKeepsUnshownNotices(t *testing.T) {
	w := httptest.NewRecorder()
	response.Redirect(w, httptest.NewRequest(http.MethodGet, "/", nil), "/login", response.Info("first"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(w.Result().Cookies()[0])
	w = httptest.NewRecorder()
	response.Redirect(w, r, "/login", response.Warning("second"))

	r = httptest.NewRequest(http.MethodGet, "/login", nil)
	r.AddCookie(w.Result().Cookies()[0])
	assert.Equal(t, []models.Notice{response.Info("first"), response.Warning("second")}, response.Pending(r))
}

func TestPendingIgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: response.FlashCookie, Value: "%%%"})
	assert.Nil(t, response.Pending(r))
}

func TestErr(t *testing.T) {
	w := httptest.NewRecorder()
	response.Err(w, "internal error", http.StatusInternalServerError)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
