package quality

import (
	"net/http"
	"strconv"

	"batchqc/internal/audit"
	"batchqc/internal/export"
	"batchqc/internal/models"
	"batchqc/internal/response"
	"batchqc/internal/server"
)

// Field is one labelled value on the report screen.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ReportView is the read-only report screen.
type ReportView struct {
	Batch  *models.Batch       `json:"batch"`
	Report *models.FinalReport `json:"report"`
	Fields []Field             `json:"fields"`
}

// ReportIndexView lists every recorded report.
type ReportIndexView struct {
	Reports []models.ReportSummary `json:"reports"`
}

func yesNo(v bool) string {
	if v {
		return "Да"
	}
	return "Нет"
}

func reportFields(rep *models.FinalReport) []Field {
	return []Field{
		{Label: "Пространственные замеры", Value: rep.SpatialDims},
		{Label: "Визуальный осмотр (цвет)", Value: rep.VisualColor},
		{Label: "Визуальный осмотр (поверхность)", Value: rep.VisualSurface},
		{Label: "Плотность, г/см³", Value: rep.Density},
		{Label: "Температура кипения, °C", Value: rep.BoilingPoint},
		{Label: "Температура плавления, °C", Value: rep.MeltingPoint},
		{Label: "Партия годна", Value: yesNo(rep.BatchGood)},
	}
}

// Report handles GET /report/:id.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request, id string) {
	b, rep, ok := h.loadReport(w, r, id)
	if !ok {
		return
	}
	response.Render(w, r, http.StatusOK, ReportView{Batch: b, Report: rep, Fields: reportFields(rep)})
}

// DownloadReport handles GET /download_report/:id?format=xlsx|csv|txt.
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request, id string) {
	b, rep, ok := h.loadReport(w, r, id)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		response.Redirect(w, r, "/report/"+strconv.FormatInt(b.ID, 10), response.Warning(NoticeBadFormat))
		return
	}

	controller := rep.ControlledBy
	if controller == "" {
		controller = h.ControllerFallback
	}
	doc := export.Build(*b, *rep, controller, h.Location)
	if err := export.Serve(w, format, export.Filename(format, *b), doc); err != nil {
		h.serverError(w, r, err, "export report")
		return
	}

	audit.Log(*h.logger(r), audit.FromRequest(r, audit.Options{
		Username: server.Username(r.Context()),
		Role:     server.Role(r.Context()),
		Action:   audit.ActionExport,
		Module:   audit.ModuleReport,
		RecordID: strconv.FormatInt(b.ID, 10),
		Summary:  "Exported report of " + b.Identifier + " as " + string(format),
	}))
}

// ListReports handles GET /reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListReports(r.Context())
	if err != nil {
		h.serverError(w, r, err, "list reports")
		return
	}
	response.Render(w, r, http.StatusOK, ReportIndexView{Reports: items})
}
