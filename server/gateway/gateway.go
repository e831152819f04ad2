// Package gateway defines the contract between the core and the delivery
// channel backend. The session state machine and the dispatch scheduler both
// talk to the channel exclusively through this interface.
package gateway

import "context"

// Status is the channel session status as reported by the gateway.
type Status string

const (
	StatusStopped      Status = "STOPPED"
	StatusInitializing Status = "INITIALIZING"
	StatusAwaitingAuth Status = "SCAN_QR_CODE"
	StatusConnected    Status = "CONNECTED"
	StatusFailed       Status = "FAILED"
	StatusDisconnected Status = "DISCONNECTED"
)

// StatusReply is the gateway's answer to a status query.
type StatusReply struct {
	Status Status
	// ConnectedIdentity is the channel identity of the authenticated
	// account, set only once the session is connected.
	ConnectedIdentity string
}

// Gateway is the delivery channel backend.
type Gateway interface {
	// StartSession requests the backend to start the session.
	StartSession(ctx context.Context) error
	// Status queries the current session status.
	Status(ctx context.Context) (*StatusReply, error)
	// AuthChallenge fetches a fresh authentication challenge. An empty
	// string with nil error means no challenge is available, e.g. the
	// session is already authenticated.
	AuthChallenge(ctx context.Context) (string, error)
	// SendText delivers a text message to the recipient identity and
	// returns the backend's message id.
	SendText(ctx context.Context, recipient, text string) (string, error)
	// StopSession tears down the session while keeping credentials.
	StopSession(ctx context.Context) error
	// LogoutSession tears down the session and invalidates credentials.
	LogoutSession(ctx context.Context) error
}
