package session

import "context"

type EventKind int

const (
	// EventQR carries a new pairing challenge.
	EventQR EventKind = iota + 1
	// EventConnected means the session is authenticated and online.
	EventConnected
	// EventCredentialsUpdated means key material changed and must be saved.
	EventCredentialsUpdated
	// EventClosed ends the connection; Cause says whether to reconnect.
	EventClosed
	// EventMessage carries an inbound text message.
	EventMessage
)

type CloseCause int

const (
	CauseOther CloseCause = iota
	CauseLoggedOut
)

type InboundMessage struct {
	From string
	Text string
}

type Event struct {
	Kind    EventKind
	QRCode  string
	Cause   CloseCause
	Err     error
	Message InboundMessage
}

// Conn is one bootstrapped transport session. Events is closed or emits
// EventClosed when the session ends.
type Conn interface {
	Events() <-chan Event
	Send(ctx context.Context, to, text string) error
	SaveCredentials(ctx context.Context) error
	HasCredentials() bool
	Close()
}

// Dialer bootstraps a new session from the credentials currently on disk.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
