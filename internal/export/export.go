// Package export turns a final-control report into a downloadable file.
package export

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"batchqc/internal/models"
	"batchqc/internal/validation"
)

// Format is a supported download format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatText Format = "txt"
)

// ParseFormat maps a query value to a Format. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV, FormatText:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Row is one label/value line of a report.
type Row struct {
	Label string
	Value string
	// Numeric marks values written as numbers when they parse as decimals.
	Numeric bool
}

// Document is an ordered report ready for serialization.
type Document struct {
	Title string
	Rows  []Row
}

// Verdict strings of the batch status row.
const (
	VerdictGood = "Годна к использованию"
	VerdictBad  = "Не годна"
)

// ControlDateLayout is how the control date is printed.
const ControlDateLayout = "02.01.2006"

// Build lays out the report of batch b. controller names the inspector and
// loc is the zone the control date is printed in; nil means time.Local.
func Build(b models.Batch, r models.FinalReport, controller string, loc *time.Location) Document {
	if loc == nil {
		loc = time.Local
	}
	verdict := VerdictBad
	if r.BatchGood {
		verdict = VerdictGood
	}
	return Document{
		Title: "Отчёт по партии " + b.Identifier,
		Rows: []Row{
			{Label: "Дата контроля", Value: r.ControlledAt.In(loc).Format(ControlDateLayout)},
			{Label: "Наименование продукции", Value: b.ProductName},
			{Label: "Идентификатор партии", Value: b.Identifier},
			{Label: "Пространственные замеры", Value: r.SpatialDims},
			{Label: "Визуальный осмотр (цвет)", Value: r.VisualColor},
			{Label: "Визуальный осмотр (поверхность)", Value: r.VisualSurface},
			{Label: "Плотность, г/см³", Value: r.Density, Numeric: true},
			{Label: "Температура кипения, °C", Value: r.BoilingPoint, Numeric: true},
			{Label: "Температура плавления, °C", Value: r.MeltingPoint, Numeric: true},
			{Label: "Статус партии", Value: verdict},
			{Label: "Контролёр", Value: controller},
			{Label: "Подпись", Value: ""},
			{Label: "Примечания", Value: ""},
		},
	}
}

// Filename returns the attachment name for a batch export. Spreadsheets
// are named after the product; text and CSV after the batch id.
func Filename(f Format, b models.Batch) string {
	if f == FormatXLSX {
		if name := validation.SanitizeFilename(b.ProductName); name != "" {
			return name + ".xlsx"
		}
	}
	return "report_" + strconv.FormatInt(b.ID, 10) + "." + string(f)
}

// ContentType returns the media type of a format.
func ContentType(f Format) string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ContentDisposition returns an attachment header value. Non-ASCII names
// are encoded as RFC 2231 filename*.
func ContentDisposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

// Encode serializes doc in format f.
func Encode(f Format, doc Document) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatXLSX:
		err = WriteXLSX(&buf, doc)
	case FormatCSV:
		err = WriteCSV(&buf, doc)
	case FormatText:
		err = WriteText(&buf, doc)
	default:
		err = fmt.Errorf("unsupported export format %q", f)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Serve encodes doc and writes it as an attachment. An encoding error is
// returned before anything is written; a failed write means the client
// went away and is not reported.
func Serve(w http.ResponseWriter, f Format, filename string, doc Document) error {
	body, err := Encode(f, doc)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", ContentType(f))
	w.Header().Set("Content-Disposition", ContentDisposition(filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
	return nil
}
