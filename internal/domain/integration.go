package domain

import "time"

// IntegrationStatus is the connection state of a platform integration.
type IntegrationStatus string

const (
	IntegrationConnected    IntegrationStatus = "connected"
	IntegrationNeedsReauth  IntegrationStatus = "needs_reauth"
	IntegrationError        IntegrationStatus = "error"
	IntegrationDisconnected IntegrationStatus = "disconnected"
)

// Integration links a business to an ad platform account.
type Integration struct {
	BusinessID   string            `json:"business_id" db:"business_id"`
	Platform     Platform          `json:"platform" db:"platform"`
	AccountID    string            `json:"account_id" db:"account_id"`
	Status       IntegrationStatus `json:"status" db:"status"`
	LastSynced   *time.Time        `json:"last_synced,omitempty" db:"last_synced"`
	ErrorMessage string            `json:"error_message,omitempty" db:"error_message"`
}

// Eligible reports whether the integration should be fetched in a batch.
// Errored integrations stay skipped until the user reconnects.
func (i Integration) Eligible() bool {
	return i.Status == IntegrationConnected
}

// AlertLevel is the severity of an operational alert.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// Alert is an operational notification emitted by the engine.
type Alert struct {
	Level      AlertLevel             `json:"level"`
	Message    string                 `json:"message"`
	Source     string                 `json:"source"`
	BusinessID string                 `json:"business_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
