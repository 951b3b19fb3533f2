// Package audit records the security-relevant events of the platform:
// logins, lockouts, authorization decisions and descriptor mutations.
package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeLogin        EventType = "auth.login"
	EventTypeLoginFailed  EventType = "auth.login_failed"
	EventTypeLogout       EventType = "auth.logout"
	EventTypeClientBanned EventType = "auth.client_banned"
	EventTypeTokenInvalid EventType = "auth.token_invalid"
	EventTypeTokenExpired EventType = "auth.token_expired"
	EventTypeImpersonate  EventType = "auth.impersonate"

	// Authorization events
	EventTypeActionDenied EventType = "authz.action_denied"

	// Resource descriptor events
	EventTypeDescriptorCreate EventType = "resource.descriptor_create"
	EventTypeDescriptorDelete EventType = "resource.descriptor_delete"
	EventTypeOwnerChange      EventType = "resource.owner_change"
	EventTypeSharingChange    EventType = "resource.sharing_change"

	// Policy configuration events
	EventTypePolicyChange EventType = "policy.assignment_change"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor is the identity performing the operation, when known.
	Actor string `json:"actor,omitempty"`

	// Client is the remote client address, when known.
	Client string `json:"client,omitempty"`

	// Action is the secured action identifier for authorization events.
	Action string `json:"action,omitempty"`

	// Resource is the resource identifier for descriptor events.
	Resource string `json:"resource,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
