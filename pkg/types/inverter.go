package types

import "encoding/json"

// Inverter is one monitored unit as reported by the login response. The
// monitor API groups inverters under plants; the plant id and name are
// stamped onto each inverter when the list is built.
type Inverter struct {
	PlantID   string `json:"plantId"`
	PlantName string `json:"plantName"`
	SerialNum string `json:"serialNum"`

	// Extra holds any fields of the inverter entry the struct doesn't model.
	Extra map[string]json.RawMessage `json:"-"`
}

// InverterKnownFields are the keys of an inverter entry that are mapped onto
// Inverter directly and therefore excluded from Extra.
var InverterKnownFields = []string{"plantId", "plantName", "serialNum"}

// APIResponse is the failure-shaped result of a data call the vendor
// answered but declined: transported fine, `success: false` in the body.
// Distinct from transport or API errors.
type APIResponse struct {
	Success      bool
	ErrorMessage string
}
