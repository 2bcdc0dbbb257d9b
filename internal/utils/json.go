package utils

import "encoding/json"

// ToJSON converts a value to a JSON string, returning "" on marshal
// failure rather than propagating an error. Used only in log fields
// where a best-effort string beats a second error path.
func ToJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
