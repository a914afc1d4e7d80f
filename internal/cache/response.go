package cache

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the cacheable envelope of a backend response.
type Response struct {
	// StatusCode is the backend's HTTP status.
	StatusCode int `json:"statusCode"`

	// Header holds the response headers to replay on a hit.
	Header http.Header `json:"header"`

	// Body is the raw response body.
	Body []byte `json:"body"`

	// StoredAt is when the response was cached.
	StoredAt time.Time `json:"storedAt"`
}

// EncodeResponse serializes a response envelope for storage.
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse deserializes a stored response envelope.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
