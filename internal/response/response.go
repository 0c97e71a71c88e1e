package response

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"batchqc/internal/models"
)

// FlashCookie carries notices across a redirect.
const FlashCookie = "batchqc_flash"

// JSON writes a 200 view with the given data and no notices.
func JSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.APIResponse{Data: data})
}

// Err writes a JSON error response with the given message and HTTP status code.
func Err(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Render writes a view. Pending flashed notices come first, followed by
// notices; the flash cookie is cleared once consumed.
func Render(w http.ResponseWriter, r *http.Request, status int, data interface{}, notices ...models.Notice) {
	pending := Pending(r)
	if len(pending) > 0 {
		clearFlash(w)
	}
	all := append(pending, notices...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.APIResponse{Data: data, Notices: all})
}

// Redirect answers 303 See Other and flashes notices for the next view.
// Notices not yet shown are kept.
func Redirect(w http.ResponseWriter, r *http.Request, url string, notices ...models.Notice) {
	if len(notices) > 0 {
		setFlash(w, append(Pending(r), notices...))
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// Pending returns the notices flashed by an earlier response.
func Pending(r *http.Request) []models.Notice {
	c, err := r.Cookie(FlashCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var notices []models.Notice
	if err := json.Unmarshal(raw, &notices); err != nil {
		return nil
	}
	return notices
}

func setFlash(w http.ResponseWriter, notices []models.Notice) {
	raw, err := json.Marshal(notices)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearFlash(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// Success builds a success notice.
func Success(msg string) models.Notice {
	return models.Notice{Category: models.NoticeSuccess, Message: msg}
}

// Info builds an informational notice.
func Info(msg string) models.Notice {
	return models.Notice{Category: models.NoticeInfo, Message: msg}
}

// Warning builds a warning notice.
func Warning(msg string) models.Notice {
	return models.Notice{Category: models.NoticeWarning, Message: msg}
}

// Danger builds an error notice.
func Danger(msg string) models.Notice {
	return models.Notice{Category: models.NoticeDanger, Message: msg}
}
