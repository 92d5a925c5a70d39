package types

import "encoding/json"

// ExtraFields decodes body as a JSON object and returns the members whose
// keys are not in known, leaving their values raw. Returns nil when nothing
// unrecognized remains. This is the explicit catch-all used by the record
// types instead of dynamic field mapping.
func ExtraFields(body []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
