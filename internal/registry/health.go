package registry

import "time"

// Status classifies a plugin's recent behavior.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

// maxHealthErrors bounds the retained error history per plugin.
const maxHealthErrors = 10

// ErrorEntry is one recorded plugin failure.
type ErrorEntry struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Health is the per-plugin health record surfaced to the host UI. Failed or
// disabled plugins are reported through this channel rather than a blocking
// error dialog.
type Health struct {
	Status      Status       `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked int64        `json:"lastChecked"`
	Errors      []ErrorEntry `json:"errors"`
}

func newHealth(status Status, message string) Health {
	return Health{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UnixMilli(),
		Errors:      []ErrorEntry{},
	}
}

// appendError records a failure, keeping only the most recent entries.
func (h *Health) appendError(code, message string) {
	h.Errors = append(h.Errors, ErrorEntry{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
	if len(h.Errors) > maxHealthErrors {
		h.Errors = h.Errors[len(h.Errors)-maxHealthErrors:]
	}
}

func (h Health) clone() Health {
	out := h
	out.Errors = append([]ErrorEntry{}, h.Errors...)
	return out
}
