package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/speedwagon-io/solarbridge/internal/session"
)

var errChallengeExpired = errors.New("pairing challenge expired")

type conn struct {
	log    *slog.Logger
	client *whatsmeow.Client
	cancel context.CancelFunc
	events chan session.Event

	disconnect func()

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(log *slog.Logger, client *whatsmeow.Client, cancel context.CancelFunc) *conn {
	return &conn{
		log:        log,
		client:     client,
		cancel:     cancel,
		events:     make(chan session.Event, 32),
		disconnect: client.Disconnect,
		done:       make(chan struct{}),
	}
}

func (c *conn) Events() <-chan session.Event {
	return c.events
}

func (c *conn) emit(ev session.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *conn) handle(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		c.emit(session.Event{Kind: session.EventConnected})
	case *events.PairSuccess:
		c.log.Info("device paired", slog.String("jid", v.ID.String()))
		c.emit(session.Event{Kind: session.EventCredentialsUpdated})
	case *events.LoggedOut:
		c.emit(session.Event{
			Kind:  session.EventClosed,
			Cause: session.CauseLoggedOut,
			Err:   fmt.Errorf("logged out: %s", v.Reason.String()),
		})
	case *events.Disconnected:
		c.emit(session.Event{Kind: session.EventClosed, Cause: session.CauseOther})
	case *events.StreamReplaced:
		c.emit(session.Event{Kind: session.EventClosed, Cause: session.CauseOther, Err: errors.New("stream replaced")})
	case *events.ConnectFailure:
		cause := session.CauseOther
		if v.Reason.IsLoggedOut() {
			cause = session.CauseLoggedOut
		}
		c.emit(session.Event{Kind: session.EventClosed, Cause: cause, Err: fmt.Errorf("connect failure: %s", v.Reason.String())})
	case *events.Message:
		text := messageText(v.Message)
		if text == "" {
			return
		}
		c.emit(session.Event{
			Kind:    session.EventMessage,
			Message: session.InboundMessage{From: v.Info.Chat.String(), Text: text},
		})
	}
}

func (c *conn) forwardChallenges(items <-chan whatsmeow.QRChannelItem) {
	for item := range items {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(session.Event{Kind: session.EventQR, QRCode: item.Code})
		case whatsmeow.QRChannelTimeout.Event:
			// restart the bootstrap to obtain fresh codes
			c.emit(session.Event{Kind: session.EventClosed, Cause: session.CauseOther, Err: errChallengeExpired})
		case whatsmeow.QRChannelEventError:
			c.emit(session.Event{Kind: session.EventClosed, Cause: session.CauseOther, Err: item.Error})
		}
	}
}

func (c *conn) Send(ctx context.Context, to, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *conn) SaveCredentials(ctx context.Context) error {
	return c.client.Store.Save(ctx)
}

func (c *conn) HasCredentials() bool {
	return c.client.Store.ID != nil
}

func (c *conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.disconnect()
	})
}

// messageText extracts the command text from a plain message, an extended
// text message or an image caption.
func messageText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if text := msg.GetExtendedTextMessage().GetText(); text != "" {
		return text
	}
	return msg.GetImageMessage().GetCaption()
}
