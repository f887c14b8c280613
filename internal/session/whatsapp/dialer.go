// Package whatsapp implements the control-channel transport on top of the
// WhatsApp multi-device protocol.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/speedwagon-io/solarbridge/internal/session"
)

// Dialer opens sessions whose key material lives in a sqlite database inside
// the auth directory. The directory must be owned by this process.
type Dialer struct {
	log       *slog.Logger
	container *sqlstore.Container
}

func NewDialer(ctx context.Context, log *slog.Logger, authDir string) (*Dialer, error) {
	if err := os.MkdirAll(authDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create auth directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(authDir, "session.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, newLogger(log.With(slog.String("component", "session_store"))))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	return &Dialer{
		log:       log,
		container: container,
	}, nil
}

// Dial loads the stored device (or a blank one when unpaired) and connects.
// An unpaired device emits pairing challenges until scanned.
func (d *Dialer) Dial(ctx context.Context) (session.Conn, error) {
	device, err := d.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	client := whatsmeow.NewClient(device, newLogger(d.log.With(slog.String("component", "whatsapp"))))
	// reconnection is owned by session.Manager
	client.EnableAutoReconnect = false

	// the pairing challenge lives as long as this connection
	connCtx, cancel := context.WithCancel(ctx)
	c := newConn(d.log, client, cancel)
	client.AddEventHandler(c.handle)

	if client.Store.ID == nil {
		qr, err := client.GetQRChannel(connCtx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to request pairing challenge: %w", err)
		}
		go c.forwardChallenges(qr)
	}

	if err := client.Connect(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return c, nil
}

func (d *Dialer) Close() error {
	return d.container.Close()
}
