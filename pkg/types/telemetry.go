package types

import "encoding/json"

// RuntimeData is the live telemetry snapshot returned by the inverter
// runtime endpoint. Values are reported in the vendor's native units:
// volts, watts, Hz and percent.
type RuntimeData struct {
	SerialNum  string  `json:"serialNum"`
	StatusText string  `json:"statusText"`
	BatterySOC float64 `json:"soc"`

	Vpv1 float64 `json:"vpv1"`
	Vpv2 float64 `json:"vpv2"`
	Vpv3 float64 `json:"vpv3"`
	Ppv1 float64 `json:"ppv1"`
	Ppv2 float64 `json:"ppv2"`
	Ppv3 float64 `json:"ppv3"`
	Ppv  float64 `json:"ppv"`

	PCharge    float64 `json:"pCharge"`
	PDischarge float64 `json:"pDisCharge"`
	VBat       float64 `json:"vBat"`

	Vac float64 `json:"vacr"`
	Fac float64 `json:"fac"`

	PToGrid float64 `json:"pToGrid"`
	PToUser float64 `json:"pToUser"`
	PEps    float64 `json:"peps"`
	SEps    float64 `json:"seps"`

	TInner     float64 `json:"tinner"`
	TRadiator1 float64 `json:"tradiator1"`
	TRadiator2 float64 `json:"tradiator2"`

	Extra map[string]json.RawMessage `json:"-"`
}

// RuntimeKnownFields lists the response keys RuntimeData maps directly,
// plus the envelope keys, so Extra only ever holds unrecognized fields.
var RuntimeKnownFields = []string{
	"success", "error", "serialNum", "statusText", "soc",
	"vpv1", "vpv2", "vpv3", "ppv1", "ppv2", "ppv3", "ppv",
	"pCharge", "pDisCharge", "vBat", "vacr", "fac",
	"pToGrid", "pToUser", "peps", "seps",
	"tinner", "tradiator1", "tradiator2",
}

// EnergyData is the cumulative energy counters returned by the inverter
// energy endpoint, in kWh: today's and lifetime totals per flow.
type EnergyData struct {
	SerialNum string `json:"serialNum"`

	TodayYielding    float64 `json:"todayYielding"`
	TotalYielding    float64 `json:"totalYielding"`
	TodayCharging    float64 `json:"todayCharging"`
	TotalCharging    float64 `json:"totalCharging"`
	TodayDischarging float64 `json:"todayDischarging"`
	TotalDischarging float64 `json:"totalDischarging"`
	TodayExport      float64 `json:"todayExport"`
	TotalExport      float64 `json:"totalExport"`
	TodayImport      float64 `json:"todayImport"`
	TotalImport      float64 `json:"totalImport"`
	TodayUsage       float64 `json:"todayUsage"`
	TotalUsage       float64 `json:"totalUsage"`

	Extra map[string]json.RawMessage `json:"-"`
}

// EnergyKnownFields lists the response keys EnergyData maps directly.
var EnergyKnownFields = []string{
	"success", "error", "serialNum",
	"todayYielding", "totalYielding",
	"todayCharging", "totalCharging",
	"todayDischarging", "totalDischarging",
	"todayExport", "totalExport",
	"todayImport", "totalImport",
	"todayUsage", "totalUsage",
}

// BatteryData is the aggregate battery state returned by the battery
// endpoint. Per-module readings from the response's batteryArray are
// expanded into Units.
type BatteryData struct {
	RemainCapacity   float64 `json:"remainCapacity"`
	FullCapacity     float64 `json:"fullCapacity"`
	TotalNumber      int     `json:"totalNumber"`
	TotalVoltageText string  `json:"totalVoltageText"`
	CurrentText      string  `json:"currentText"`

	Units []BatteryUnit `json:"-"`

	Extra map[string]json.RawMessage `json:"-"`
}

// BatteryKnownFields lists the response keys BatteryData maps directly.
// batteryArray is listed because it's expanded into Units.
var BatteryKnownFields = []string{
	"success", "error", "batteryArray",
	"remainCapacity", "fullCapacity", "totalNumber",
	"totalVoltageText", "currentText",
}

// BatteryUnit is one battery module from the battery endpoint's
// batteryArray.
type BatteryUnit struct {
	BatIndex   int     `json:"batIndex"`
	BatterySN  string  `json:"batterySn"`
	Voltage    float64 `json:"voltage"`
	Current    float64 `json:"current"`
	SOC        float64 `json:"soc"`
	SOH        float64 `json:"soh"`
	CycleCount int     `json:"cycleCnt"`

	Extra map[string]json.RawMessage `json:"-"`
}

// BatteryUnitKnownFields lists the entry keys BatteryUnit maps directly.
var BatteryUnitKnownFields = []string{
	"batIndex", "batterySn", "voltage", "current", "soc", "soh", "cycleCnt",
}
