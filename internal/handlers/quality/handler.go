package quality

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"batchqc/internal/models"
	"batchqc/internal/response"
	"batchqc/internal/store"
	"batchqc/internal/websocket"
)

// User-facing notices.
const (
	NoticeDateRequired  = "Введите дату"
	NoticeNoPending     = "Нет партий, ожидающих финального контроля, на выбранную дату"
	NoticeBatchNotFound = "Партия не найдена"
	NoticeReportMissing = "Отчёт по данной партии отсутствует"
	NoticeBadFormat     = "Неподдерживаемый формат отчёта"
)

const catalogPath = "/choose_batch"

// Handler holds dependencies for quality handlers.
type Handler struct {
	Store store.Store
	// Hub is optional; finalized batches are announced on it.
	Hub *websocket.Hub
	Log zerolog.Logger

	// ControllerFallback names the inspector on exports of reports that
	// carry no username.
	ControllerFallback string

	// Location is the zone exported control dates are printed in.
	// Defaults to time.Local.
	Location *time.Location

	// Now returns the control timestamp. Defaults to time.Now.
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.Log
}

// serverError logs err and answers with a generic 500.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger(r).Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	response.Err(w, "internal error", http.StatusInternalServerError)
}

// loadBatch resolves the id path segment. On failure it has already
// answered the request.
func (h *Handler) loadBatch(w http.ResponseWriter, r *http.Request, id string) (*models.Batch, bool) {
	batchID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || batchID <= 0 {
		response.Redirect(w, r, catalogPath, response.Danger(NoticeBatchNotFound))
		return nil, false
	}
	b, err := h.Store.GetBatch(r.Context(), batchID)
	if errors.Is(err, store.ErrNotFound) {
		response.Redirect(w, r, catalogPath, response.Danger(NoticeBatchNotFound))
		return nil, false
	}
	if err != nil {
		h.serverError(w, r, err, "load batch")
		return nil, false
	}
	return b, true
}

// loadReport returns the batch and its report, redirecting to the
// catalog when either is missing.
func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request, id string) (*models.Batch, *models.FinalReport, bool) {
	b, ok := h.loadBatch(w, r, id)
	if !ok {
		return nil, nil, false
	}
	rep, err := h.Store.GetReport(r.Context(), b.ID)
	if errors.Is(err, store.ErrNotFound) {
		response.Redirect(w, r, catalogPath, response.Warning(NoticeReportMissing))
		return nil, nil, false
	}
	if err != nil {
		h.serverError(w, r, err, "load report")
		return nil, nil, false
	}
	return b, rep, true
}
