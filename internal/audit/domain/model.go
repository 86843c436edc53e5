package domain

import "time"

type Type string

const (
	TypeCreate      Type = "CREATE"
	TypeAdminLogin  Type = "ADMIN_LOGIN"
	TypeAdminLogout Type = "ADMIN_LOGOUT"
	TypeWebhookUse  Type = "WEBHOOK_USE"
	TypeManualUse   Type = "MANUAL_USE"
	TypeAdjust      Type = "ADJUST"
	TypeUpdate      Type = "UPDATE"
	TypeDisable     Type = "DISABLE"
	TypeDisplay     Type = "DISPLAY"
	TypeConfirm     Type = "CONFIRM"
	TypeUploadQR    Type = "UPLOAD_QR"
)

var knownTypes = map[Type]struct{}{
	TypeCreate: {}, TypeAdminLogin: {}, TypeAdminLogout: {}, TypeWebhookUse: {},
	TypeManualUse: {}, TypeAdjust: {}, TypeUpdate: {}, TypeDisable: {},
	TypeDisplay: {}, TypeConfirm: {}, TypeUploadQR: {},
}

func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Entry is an append-only record of a state-changing or security-relevant event.
type Entry struct {
	ID        string         `json:"id"`
	TS        time.Time      `json:"ts"`
	Type      Type           `json:"type"`
	VoucherID string         `json:"voucherId,omitempty"`
	IP        string         `json:"ip"`
	UA        string         `json:"ua"`
	Meta      map[string]any `json:"meta"`
}
