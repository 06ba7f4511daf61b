package schema

import "time"

// PullAudience is the aud claim of pull tokens.
const PullAudience = "config-pull"

// AdminAudience is the aud claim of admin session tokens.
const AdminAudience = "config-admin"

// MediaTypeJSON is reported for json configs.
const MediaTypeJSON = "application/json"

// PullResponse is the body of a successful pull.
type PullResponse struct {
	ServiceCode string         `json:"service_code"`
	Env         string         `json:"env"`
	Format      string         `json:"format"`
	Version     string         `json:"version"`
	MediaType   string         `json:"media_type"`
	ETag        string         `json:"etag"`
	Content     map[string]any `json:"content"`
}

// Envelope wraps every JSON body written by the HTTP API.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// OK builds a success envelope.
func OK(data any) Envelope {
	return Envelope{Code: 0, Message: "OK", Data: data, Timestamp: time.Now().Unix()}
}

// Fail builds an error envelope; code is the HTTP status.
func Fail(status int, message string, data any) Envelope {
	return Envelope{Code: status, Message: message, Data: data, Timestamp: time.Now().Unix()}
}
