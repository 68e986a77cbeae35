package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/peerloop/peerloop/model"
)

// Action is the closed set of audit event tags. Keeping this an enumeration
// with a schema table prevents writer/reader drift on the event log.
type Action string

const (
	ActionLoginSuccess    Action = "login_success"
	ActionLoginFailure    Action = "login_failure"
	ActionUserRegistered  Action = "user_registered"
	ActionTwoFAEnrolled   Action = "2fa_enrolled"
	ActionTwoFAEnabled    Action = "2fa_enabled"
	ActionTwoFADisabled   Action = "2fa_disabled"
	ActionTwoFAVerified   Action = "2fa_verified"
	ActionTwoFAFailed     Action = "2fa_failed"
	ActionPasswordChanged Action = "password_changed"
	ActionPasswordReset   Action = "password_reset"
	ActionSettingsUpdated Action = "settings_updated"
)

// payloadSchemas maps each action to a prototype of its Details payload.
// Actions without an entry carry no structured payload.
var payloadSchemas = map[Action]func() any{
	ActionLoginSuccess:    func() any { return &LoginDetails{} },
	ActionLoginFailure:    func() any { return &LoginDetails{} },
	ActionTwoFAVerified:   func() any { return &TwoFADetails{} },
	ActionTwoFAFailed:     func() any { return &TwoFADetails{} },
	ActionSettingsUpdated: func() any { return &json.RawMessage{} },
}

// Known reports whether the action belongs to the closed set.
func Known(action Action) bool {
	switch action {
	case ActionLoginSuccess, ActionLoginFailure, ActionUserRegistered,
		ActionTwoFAEnrolled, ActionTwoFAEnabled, ActionTwoFADisabled,
		ActionTwoFAVerified, ActionTwoFAFailed,
		ActionPasswordChanged, ActionPasswordReset, ActionSettingsUpdated:
		return true
	}
	return false
}

// NewPayload returns a zero payload value for the action, or nil when the
// action carries none.
func NewPayload(action Action) any {
	if ctor, ok := payloadSchemas[action]; ok {
		return ctor()
	}
	return nil
}

type LoginDetails struct {
	Method string `json:"method"` // password, totp, email_code, backup_code
	Reason string `json:"reason,omitempty"`
}

type TwoFADetails struct {
	Method string `json:"method"`
	Reason string `json:"reason,omitempty"`
}

// Recorder appends security-trail events. Recording failures are logged and
// swallowed: the audit trail must never fail the request it describes.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) record(ctx context.Context, userID uint, action Action, ip string, details any) {
	event := &model.AuditEvent{
		UserID: userID,
		Action: string(action),
		IP:     ip,
	}
	if details != nil {
		blob, err := json.Marshal(details)
		if err != nil {
			slog.Error("Failed to encode audit details", "action", action, "error", err)
			return
		}
		event.Details = blob
	}
	if err := r.repo.Append(ctx, event); err != nil {
		slog.Error("Failed to record audit event", "action", action, "user", userID, "error", err)
	}
}

func (r *Recorder) Login(ctx context.Context, userID uint, ip string, method string, success bool, reason string) {
	action := ActionLoginFailure
	if success {
		action = ActionLoginSuccess
	}
	r.record(ctx, userID, action, ip, &LoginDetails{Method: method, Reason: reason})
}

func (r *Recorder) Registered(ctx context.Context, userID uint, ip string) {
	r.record(ctx, userID, ActionUserRegistered, ip, nil)
}

func (r *Recorder) TwoFA(ctx context.Context, userID uint, action Action, method string, reason string) {
	r.record(ctx, userID, action, "", &TwoFADetails{Method: method, Reason: reason})
}

func (r *Recorder) PasswordChanged(ctx context.Context, userID uint) {
	r.record(ctx, userID, ActionPasswordChanged, "", nil)
}

func (r *Recorder) PasswordReset(ctx context.Context, userID uint) {
	r.record(ctx, userID, ActionPasswordReset, "", nil)
}
