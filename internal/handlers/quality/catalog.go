package quality

import (
	"net/http"

	"batchqc/internal/models"
	"batchqc/internal/response"
	"batchqc/internal/validation"
)

// CatalogView is the batch selection screen.
type CatalogView struct {
	BatchDate string         `json:"batch_date"`
	Batches   []models.Batch `json:"batches"`
}

// CatalogForm is the input of the batch selection form.
type CatalogForm struct {
	BatchDate string `form:"batch_date" validate:"required,datetime=2006-01-02"`
	BatchID   string `form:"batch_id" validate:"omitempty,number"`
}

// ChooseBatch handles GET and POST /choose_batch.
//
// Without a date a GET shows the empty form and a POST warns. With a date
// the batches pending final control on that day are listed; with a chosen
// batch the caller is sent to its passport.
func (h *Handler) ChooseBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.Render(w, r, http.StatusBadRequest, CatalogView{Batches: []models.Batch{}}, response.Warning("invalid form"))
		return
	}
	form := CatalogForm{BatchDate: r.Form.Get("batch_date"), BatchID: r.Form.Get("batch_id")}
	view := CatalogView{BatchDate: form.BatchDate, Batches: []models.Batch{}}

	if form.BatchDate == "" {
		if r.Method == http.MethodPost {
			response.Render(w, r, http.StatusOK, view, response.Warning(NoticeDateRequired))
			return
		}
		response.Render(w, r, http.StatusOK, view)
		return
	}

	ve := &validation.ValidationErrors{}
	if err := validation.Struct(ve, form); err != nil {
		h.serverError(w, r, err, "validate catalog form")
		return
	}
	if ve.HasErrors() {
		response.Render(w, r, http.StatusOK, view, response.Warning(ve.Error()))
		return
	}

	if form.BatchID != "" {
		response.Redirect(w, r, "/passport/"+form.BatchID)
		return
	}

	batches, err := h.Store.ListPending(r.Context(), form.BatchDate)
	if err != nil {
		h.serverError(w, r, err, "list pending batches")
		return
	}
	if len(batches) == 0 {
		response.Render(w, r, http.StatusOK, view, response.Info(NoticeNoPending))
		return
	}
	view.Batches = batches
	response.Render(w, r, http.StatusOK, view)
}
