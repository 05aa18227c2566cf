package mqtt

import (
	"context"
	"errors"
	"testing"
)

// disconnectedClient returns a client that has never connected.
// Validation and short-circuit paths can be exercised without a broker.
func disconnectedClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
		liveness:      NewLiveness(),
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"invalid qos", "devices/d1/data", []byte("x"), 3, ErrInvalidQoS},
		{"disconnected", "devices/d1/data", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublish_OversizedPayload(t *testing.T) {
	c := disconnectedClient()

	payload := make([]byte, maxPayloadSize+1)
	err := c.Publish("devices/d1/data", payload, 0, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("devices/+/data", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("devices/+/data", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("devices/+/data", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() on disconnected client error = %v, want ErrNotConnected", err)
	}

	// Failed subscriptions must not be tracked.
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestSendCommand_Disconnected(t *testing.T) {
	c := disconnectedClient()

	if c.SendCommand("aqs-0042", "go", nil) {
		t.Error("SendCommand() on disconnected client = true, want false")
	}
}

func TestSendCommand_EmptyArguments(t *testing.T) {
	c := disconnectedClient()

	if c.SendCommand("", "go", nil) {
		t.Error("SendCommand() with empty device ID = true, want false")
	}
	if c.SendCommand("aqs-0042", "", nil) {
		t.Error("SendCommand() with empty command = true, want false")
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := disconnectedClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	c := disconnectedClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	c := disconnectedClient()

	if c.IsConnected() {
		t.Error("IsConnected() = true for never-connected client")
	}
}

func TestCloseNil(t *testing.T) {
	c := disconnectedClient()

	if err := c.Close(); err != nil {
		t.Errorf("Close() on never-connected client error = %v", err)
	}
}
