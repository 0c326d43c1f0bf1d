// Package servicenow provides types and utilities for interacting with the ServiceNow Table API.
package servicenow

// Record represents a single ServiceNow table record as a map of field names to values.
type Record map[string]interface{}

// TableResponse represents the JSON response for a multi-record Table API query.
type TableResponse struct {
	Result []Record `json:"result"`
}

// RecordResponse represents the JSON response for a single-record Table API call.
type RecordResponse struct {
	Result Record `json:"result"`
}

// ErrorResponse represents a ServiceNow API error response body.
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// String returns the value of a field as a string. Works for plain string
// fields and for sysparm_display_value=all objects, where it returns the
// raw "value" member. Missing fields return "".
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s, ok := t["value"].(string); ok {
			return s
		}
	}
	return ""
}

// DisplayString returns the display value of a field. For
// sysparm_display_value=all objects it returns the "display_value" member,
// otherwise it falls back to the plain string value.
func (r Record) DisplayString(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if s, ok := t["display_value"].(string); ok {
			return s
		}
		if s, ok := t["value"].(string); ok {
			return s
		}
	}
	return ""
}

// Bool interprets a field's string value as a ServiceNow boolean ("true").
func (r Record) Bool(field string) bool {
	return r.String(field) == "true"
}
