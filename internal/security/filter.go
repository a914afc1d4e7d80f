package security

import (
	"encoding/json"
	"strings"
)

// Field names whose values are masked in logged payloads.
var sensitiveFields = map[string]struct{}{
	"password":      {},
	"secret":        {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"authorization": {},
	"api_key":       {},
	"apikey":        {},
	"credit_card":   {},
	"ssn":           {},
}

const maskedValue = "***"

// IsSensitiveField reports whether a field name is masked.
func IsSensitiveField(name string) bool {
	_, ok := sensitiveFields[strings.ToLower(name)]
	return ok
}

// MaskSensitiveJSON masks sensitive field values in a JSON document,
// recursing through nested objects and arrays. Non-JSON input is
// returned unchanged.
func MaskSensitiveJSON(data []byte) []byte {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return data
	}

	masked := maskValue(doc)

	out, err := json.Marshal(masked)
	if err != nil {
		return data
	}
	return out
}

func maskValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, inner := range v {
			if IsSensitiveField(key) {
				v[key] = maskedValue
				continue
			}
			v[key] = maskValue(inner)
		}
		return v
	case []interface{}:
		for i, inner := range v {
			v[i] = maskValue(inner)
		}
		return v
	default:
		return value
	}
}
