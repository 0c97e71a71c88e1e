package models

import "time"

// DateLayout is the layout of batch creation dates and catalog input.
const DateLayout = "2006-01-02"

// Notice categories, in increasing severity.
const (
	NoticeSuccess = "success"
	NoticeInfo    = "info"
	NoticeWarning = "warning"
	NoticeDanger  = "danger"
)

// APIResponse is the standard JSON envelope for rendered views.
type APIResponse struct {
	Data    interface{} `json:"data"`
	Notices []Notice    `json:"notices,omitempty"`
}

// Notice is a one-shot message shown to the user on the next rendered view.
type Notice struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Batch is one production run tracked through the fixed processing stages.
type Batch struct {
	ID               int64  `json:"id" yaml:"id"`
	Identifier       string `json:"identifier" yaml:"identifier"`
	ProductName      string `json:"product_name" yaml:"product_name"`
	CreatedOn        string `json:"date" yaml:"date"`
	FinalControlDone bool   `json:"final_control_done" yaml:"final_control_done"`

	Smelting      *Smelting      `json:"smelting_data,omitempty" yaml:"smelting_data"`
	Refining      *Refining      `json:"refining_data,omitempty" yaml:"refining_data"`
	Cooling       *Cooling       `json:"cooling_data,omitempty" yaml:"cooling_data"`
	HeatTreatment *HeatTreatment `json:"heat_treatment_data,omitempty" yaml:"heat_treatment_data"`
	Mechanical    *Mechanical    `json:"mechanical_data,omitempty" yaml:"mechanical_data"`
}

type Smelting struct {
	TempRegime     string `json:"temp_regime" yaml:"temp_regime"`
	TimeEachTemp   string `json:"time_each_temp" yaml:"time_each_temp"`
	TotalTime      string `json:"total_time" yaml:"total_time"`
	RawMaterials   string `json:"raw_materials" yaml:"raw_materials"`
	ConsumedAmount string `json:"consumed_amount" yaml:"consumed_amount"`
}

type Refining struct {
	Duration        string `json:"duration" yaml:"duration"`
	Chemicals       string `json:"chemicals" yaml:"chemicals"`
	ChemicalsVolume string `json:"chemicals_volume" yaml:"chemicals_volume"`
}

type Cooling struct {
	CoolingTime string `json:"cooling_time" yaml:"cooling_time"`
	Deformation string `json:"deformation" yaml:"deformation"`
}

type HeatTreatment struct {
	TempRegime string `json:"temp_regime" yaml:"temp_regime"`
	Duration   string `json:"duration" yaml:"duration"`
}

type Mechanical struct {
	RolledSize     string `json:"rolled_size" yaml:"rolled_size"`
	AdditionalInfo string `json:"additional_info" yaml:"additional_info"`
}

// FinalReport is the result of the final quality control of a batch.
// There is at most one report per batch.
type FinalReport struct {
	BatchID       int64     `json:"batch_id"`
	SpatialDims   string    `json:"spatial_dims"`
	VisualColor   string    `json:"visual_color"`
	VisualSurface string    `json:"visual_surface"`
	Density       string    `json:"density"`
	BoilingPoint  string    `json:"boiling_point"`
	MeltingPoint  string    `json:"melting_point"`
	BatchGood     bool      `json:"batch_good"`
	ControlledBy  string    `json:"controlled_by"`
	ControlledAt  time.Time `json:"controlled_at"`
}

// ReportSummary is a report joined with the identity of its batch.
type ReportSummary struct {
	FinalReport
	Identifier  string `json:"identifier"`
	ProductName string `json:"product_name"`
}
