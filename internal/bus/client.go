// Package bus wraps the MQTT connection used for sensor ingestion, state
// broadcasts and actuator control.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/speedwagon-io/solarbridge/internal/config"
	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
)

var ErrNotConnected = errors.New("bus not connected")

// Message is one inbound publication.
type Message struct {
	Subject string
	Payload []byte
}

// Handler consumes inbound messages. Calls are sequential.
type Handler func(ctx context.Context, msg Message)

// Publisher is the outbound side of the bus used by the rest of the bridge.
type Publisher interface {
	Publish(ctx context.Context, subject string, qos byte, payload []byte) error
	IsConnected() bool
}

type Client struct {
	log      *slog.Logger
	cfg      config.BusConfig
	client   mqtt.Client
	subjects []string
	inbox    chan Message
	done     chan struct{}
	once     sync.Once
}

func New(log *slog.Logger, cfg config.BusConfig) *Client {
	c := &Client{
		log:      log,
		cfg:      cfg,
		subjects: cfg.Subjects.Inbound(),
		inbox:    make(chan Message, 256),
		done:     make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8])).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.Warn("bus connection lost", sl.Err(err))
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			c.log.Info("reconnecting to bus")
		})

	c.client = mqtt.NewClient(opts)
	return c
}

// subscriptions are restored by hand on every (re)connect since the session
// is clean
func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info("connected to bus", slog.String("url", c.cfg.URL))

	filters := make(map[string]byte, len(c.subjects))
	for _, s := range c.subjects {
		filters[s] = c.cfg.QoS
	}

	token := client.SubscribeMultiple(filters, c.receive)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error("failed to subscribe", sl.Err(err))
			return
		}
		c.log.Info("subscribed to subjects", slog.Any("subjects", c.subjects))
	}()
}

func (c *Client) receive(_ mqtt.Client, m mqtt.Message) {
	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())
	select {
	case c.inbox <- Message{Subject: m.Topic(), Payload: payload}:
	case <-c.done:
	}
}

// Connect starts connecting in the background; with connect-retry enabled
// the underlying client keeps trying until it succeeds or Close is called.
// It waits up to the configured timeout for the first connection.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		c.log.Warn("bus not reachable yet, retrying in background", slog.String("url", c.cfg.URL))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers inbound messages to handler one at a time until ctx ends.
func (c *Client) Run(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.inbox:
			handler(ctx, msg)
		}
	}
}

func (c *Client) Publish(ctx context.Context, subject string, qos byte, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := c.client.Publish(subject, qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", subject, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
	c.client.Disconnect(250)
}
