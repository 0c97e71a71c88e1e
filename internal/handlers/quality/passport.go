package quality

import (
	"errors"
	"net/http"
	"strconv"

	"batchqc/internal/audit"
	"batchqc/internal/models"
	"batchqc/internal/response"
	"batchqc/internal/server"
	"batchqc/internal/store"
	"batchqc/internal/validation"
)

// PassportView is a batch with its stage records and, once recorded, its
// final report.
type PassportView struct {
	Batch  *models.Batch       `json:"batch"`
	Report *models.FinalReport `json:"report,omitempty"`
}

// FinalControlForm is the final inspection form. BatchGood is a checkbox:
// only "on" means good.
type FinalControlForm struct {
	SpatialDims   string `form:"spatial_dims" validate:"max=255"`
	VisualColor   string `form:"visual_color" validate:"max=255"`
	VisualSurface string `form:"visual_surface" validate:"max=255"`
	Density       string `form:"density" validate:"max=255"`
	BoilingPoint  string `form:"boiling_point" validate:"max=255"`
	MeltingPoint  string `form:"melting_point" validate:"max=255"`
	BatchGood     string `form:"batch_good" validate:"max=255"`
}

func parseFinalControl(r *http.Request) FinalControlForm {
	return FinalControlForm{
		SpatialDims:   r.PostForm.Get("spatial_dims"),
		VisualColor:   r.PostForm.Get("visual_color"),
		VisualSurface: r.PostForm.Get("visual_surface"),
		Density:       r.PostForm.Get("density"),
		BoilingPoint:  r.PostForm.Get("boiling_point"),
		MeltingPoint:  r.PostForm.Get("melting_point"),
		BatchGood:     r.PostForm.Get("batch_good"),
	}
}

// Passport handles GET /passport/:id.
func (h *Handler) Passport(w http.ResponseWriter, r *http.Request, id string) {
	b, ok := h.loadBatch(w, r, id)
	if !ok {
		return
	}
	view, err := h.passportView(r, b)
	if err != nil {
		h.serverError(w, r, err, "load report")
		return
	}
	response.Render(w, r, http.StatusOK, view)
}

func (h *Handler) passportView(r *http.Request, b *models.Batch) (PassportView, error) {
	view := PassportView{Batch: b}
	if !b.FinalControlDone {
		return view, nil
	}
	rep, err := h.Store.GetReport(r.Context(), b.ID)
	if errors.Is(err, store.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return view, err
	}
	view.Report = rep
	return view, nil
}

// RecordFinalControl handles POST /passport/:id. The report is upserted
// and the batch flagged in one store call, then the caller is sent to the
// report.
func (h *Handler) RecordFinalControl(w http.ResponseWriter, r *http.Request, id string) {
	b, ok := h.loadBatch(w, r, id)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		response.Render(w, r, http.StatusBadRequest, PassportView{Batch: b}, response.Warning("invalid form"))
		return
	}

	form := parseFinalControl(r)
	ve := &validation.ValidationErrors{}
	if err := validation.Struct(ve, form); err != nil {
		h.serverError(w, r, err, "validate final control form")
		return
	}
	if ve.HasErrors() {
		view, err := h.passportView(r, b)
		if err != nil {
			h.serverError(w, r, err, "load report")
			return
		}
		response.Render(w, r, http.StatusOK, view, response.Warning(ve.Error()))
		return
	}

	username := server.Username(r.Context())
	rep := models.FinalReport{
		BatchID:       b.ID,
		SpatialDims:   form.SpatialDims,
		VisualColor:   form.VisualColor,
		VisualSurface: form.VisualSurface,
		Density:       form.Density,
		BoilingPoint:  form.BoilingPoint,
		MeltingPoint:  form.MeltingPoint,
		BatchGood:     form.BatchGood == "on",
		ControlledBy:  username,
		ControlledAt:  h.now().UTC(),
	}
	err := h.Store.RecordFinalControl(r.Context(), rep)
	if errors.Is(err, store.ErrNotFound) {
		response.Redirect(w, r, catalogPath, response.Danger(NoticeBatchNotFound))
		return
	}
	if err != nil {
		h.serverError(w, r, err, "record final control")
		return
	}

	if h.Hub != nil {
		h.Hub.BatchFinalized(b.ID)
	}
	batchID := strconv.FormatInt(b.ID, 10)
	audit.Log(*h.logger(r), audit.FromRequest(r, audit.Options{
		Username:   username,
		Role:       server.Role(r.Context()),
		Action:     audit.ActionFinalize,
		Module:     audit.ModuleReport,
		RecordID:   batchID,
		Summary:    "Final control recorded for " + b.Identifier,
		AfterValue: rep,
	}))

	response.Redirect(w, r, "/report/"+batchID)
}
