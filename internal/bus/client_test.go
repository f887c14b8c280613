package bus

import (
	"context"
	"strconv"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/solarbridge/internal/config"
	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
)

const brokerAddress = "127.0.0.1:18831"

func startBroker(t *testing.T) string {
	t.Helper()

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "bus-test",
		Type:    "tcp",
		Address: brokerAddress,
	})
	require.NoError(t, server.AddListener(tcp))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })

	return "tcp://" + brokerAddress
}

func testConfig(url string) config.BusConfig {
	return config.BusConfig{
		URL:            url,
		ClientID:       "solarbridge-test",
		ConnectTimeout: 5 * time.Second,
		Subjects: config.Subjects{
			PowerMeter:     "sensor/power-meter",
			Light:          "sensor/light",
			Climate:        "sensor/climate",
			Irradiance:     "sensor/irradiance",
			EstimatedPower: "sensor/estimated-power",
			State:          "sensor/state",
			Control:        "actuator/pins",
		},
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	c := New(sl.Discard(), testConfig("tcp://127.0.0.1:1"))
	require.False(t, c.IsConnected())

	err := c.Publish(context.Background(), "actuator/pins", 1, []byte(`{}`))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscribeAndPublish(t *testing.T) {
	url := startBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(sl.Discard(), testConfig(url))
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)
	require.True(t, c.IsConnected())

	received := make(chan Message, 16)
	go c.Run(ctx, func(_ context.Context, msg Message) {
		received <- msg
	})

	payload := []byte(`{"voltage":12.1}`)
	require.Eventually(t, func() bool {
		if err := c.Publish(ctx, "sensor/power-meter", 1, payload); err != nil {
			return false
		}
		select {
		case msg := <-received:
			return msg.Subject == "sensor/power-meter" && string(msg.Payload) == string(payload)
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	// subjects outside the inbound list are not delivered
	require.NoError(t, c.Publish(ctx, "sensor/state", 0, []byte(`{}`)))
	select {
	case msg := <-received:
		require.NotEqual(t, "sensor/state", msg.Subject)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRunPreservesArrivalOrder(t *testing.T) {
	url := startBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(sl.Discard(), testConfig(url))
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)

	received := make(chan Message, 1024)
	go c.Run(ctx, func(_ context.Context, msg Message) {
		received <- msg
	})

	// wait for the subscription before publishing the sequence
	require.Eventually(t, func() bool {
		if err := c.Publish(ctx, "sensor/power-meter", 1, []byte(`{}`)); err != nil {
			return false
		}
		select {
		case msg := <-received:
			return msg.Subject == "sensor/power-meter"
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	const n = 300
	for i := 0; i < n; i++ {
		require.NoError(t, c.Publish(ctx, "sensor/irradiance", 1, []byte(`{"irradiance":`+strconv.Itoa(i)+`}`)))
	}

	next := 0
	deadline := time.After(10 * time.Second)
	for next < n {
		select {
		case msg := <-received:
			if msg.Subject != "sensor/irradiance" {
				continue
			}
			require.Equal(t, `{"irradiance":`+strconv.Itoa(next)+`}`, string(msg.Payload))
			next++
		case <-deadline:
			t.Fatalf("received %d of %d messages", next, n)
		}
	}
}
