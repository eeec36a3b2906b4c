// Package types holds the request and response shapes shared by the
// service layer and the HTTP API.
package types

// Decision reasons. A miss and a schedule deny are deliberately distinct.
const (
	ReasonGranted           = "granted"
	ReasonUnknownCredential = "unknown_credential"
	ReasonOutsideSchedule   = "outside_schedule"
	ReasonInactive          = "inactive"
	ReasonActuatorFault     = "actuator_fault"
	ReasonRemoteUnlock      = "remote_unlock"
)

type AccessRequest struct {
	Credential string `json:"credential"`
	Device     string `json:"device,omitempty"`
}

type AccessResponse struct {
	OK         bool   `json:"ok"`
	Granted    bool   `json:"granted"`
	Reason     string `json:"reason,omitempty"`
	UserID     int64  `json:"user_id,omitempty"`
	TicketID   string `json:"ticket_id,omitempty"`
	ServerTime string `json:"server_time"`
}

type UnlockRequest struct {
	// DurationSeconds overrides the configured relay hold; 0 uses it.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}

type UnlockResponse struct {
	Message     string `json:"message"`
	TicketID    string `json:"ticket_id"`
	HoldSeconds int    `json:"hold_seconds"`
}

type ReaderStatusResponse struct {
	Status      string `json:"status"`
	LiveDevices int    `json:"live_devices"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type RfidReadResponse struct {
	// Value is empty when nothing was scanned before the timeout.
	Value          string `json:"value,omitempty"`
	LastFourDigits string `json:"last_four_digits,omitempty"`
	TimedOut       bool   `json:"timed_out"`
}
