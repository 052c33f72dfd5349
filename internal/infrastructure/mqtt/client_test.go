package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/keymux/internal/infrastructure/config"
)

const testBrokerAddr = "127.0.0.1:1883"

// testConfig returns a configuration pointing at a local Mosquitto broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "keymux-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker, skipping the test when none
// is listening.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBrokerAddr, 500*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s: %v", testBrokerAddr, err)
	}
	conn.Close() //nolint:errcheck // probe only

	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SystemStatus", topics.SystemStatus(), "keymux/system/status"},
		{"Layer", topics.Layer(), "keymux/notify/layer"},
		{"Device", topics.Device(), "keymux/notify/device"},
		{"IPCEffect", topics.IPCEffect(), "keymux/ipc/effect"},
		{"IPCReply", topics.IPCReply(), "keymux/ipc/reply"},
		{"AllNotifications", topics.AllNotifications(), "keymux/notify/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestStatusPayload(t *testing.T) {
	var p StatusPayload
	if err := json.Unmarshal(statusPayload("offline", "keymux", "graceful_shutdown"), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.Status != "offline" || p.ClientID != "keymux" || p.Reason != "graceful_shutdown" {
		t.Errorf("payload = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("Timestamp %q not RFC3339: %v", p.Timestamp, err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "user"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "keymux-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" {
		t.Errorf("Username = %q", opts.Username)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestHandleEffectRequest(t *testing.T) {
	errBoom := errors.New("boom")
	one := int32(1)

	tests := []struct {
		name      string
		payload   string
		handleErr error
		wantOK    bool
		wantID    string
		wantErr   string
		wantValue *int32
	}{
		{
			name:    "tap",
			payload: `{"id":"r1","effect":"Key(KEY_A)"}`,
			wantOK:  true,
			wantID:  "r1",
		},
		{
			name:      "press",
			payload:   `{"id":"r2","effect":"Key(KEY_A)","value":1}`,
			wantOK:    true,
			wantID:    "r2",
			wantValue: &one,
		},
		{
			name:    "bad json",
			payload: `{`,
			wantErr: "invalid request",
		},
		{
			name:    "missing effect",
			payload: `{"id":"r3"}`,
			wantID:  "r3",
			wantErr: "effect is required",
		},
		{
			name:    "bad value",
			payload: `{"id":"r4","effect":"Key(KEY_A)","value":2}`,
			wantID:  "r4",
			wantErr: "value must be 0 or 1",
		},
		{
			name:      "handler error",
			payload:   `{"id":"r5","effect":"Key(KEY_A)"}`,
			handleErr: errBoom,
			wantID:    "r5",
			wantErr:   "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *EffectRequest
			reply := HandleEffectRequest([]byte(tt.payload), func(req EffectRequest) error {
				got = &req
				return tt.handleErr
			})

			if reply.OK != tt.wantOK || reply.ID != tt.wantID {
				t.Errorf("reply = %+v, want ok=%v id=%q", reply, tt.wantOK, tt.wantID)
			}
			if tt.wantErr != "" && !strings.Contains(reply.Error, tt.wantErr) {
				t.Errorf("reply.Error = %q, want it to contain %q", reply.Error, tt.wantErr)
			}
			if tt.wantOK && got == nil {
				t.Fatal("handler not called")
			}
			if tt.wantValue != nil && (got.Value == nil || *got.Value != *tt.wantValue) {
				t.Errorf("request value = %v, want %d", got.Value, *tt.wantValue)
			}
		})
	}
}

func TestClient_ValidationWithoutConnection(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("t", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("t", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("t", 1, noop), ErrNotConnected},
		{"serve nil handler", c.ServeEffects(nil), ErrSubscribeFailed},
		{"notify disconnected", c.NotifyLayer([]int{0}, "test"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
	if c.HasSubscription("t") {
		t.Error("HasSubscription() = true after failed subscribe")
	}
}

func TestWrapHandler_RecoversPanics(t *testing.T) {
	logger := &recordLogger{}
	c := &Client{}
	c.SetLogger(logger)

	h := c.wrapHandler(func(string, []byte) error { panic("bad payload") })
	h(nil, fakeMessage{topic: "keymux/ipc/effect"})

	h = c.wrapHandler(func(string, []byte) error { return errors.New("rejected") })
	h(nil, fakeMessage{topic: "keymux/ipc/effect"})

	if logger.errors != 1 || logger.warns != 1 {
		t.Errorf("errors=%d warns=%d, want 1 and 1", logger.errors, logger.warns)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	pub := connectOrSkip(t, "keymux-test-pub")
	sub := connectOrSkip(t, "keymux-test-sub")

	received := make(chan LayerNotification, 1)
	err := sub.Subscribe(Topics{}.Layer(), 1, func(_ string, payload []byte) error {
		var n LayerNotification
		if err := json.Unmarshal(payload, &n); err != nil {
			return err
		}
		received <- n
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(Topics{}.Layer()) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	if err := pub.NotifyLayer([]int{0, 2}, "toggle"); err != nil {
		t.Fatalf("NotifyLayer() error = %v", err)
	}

	select {
	case n := <-received:
		if n.Top != 2 || len(n.Active) != 2 || n.Reason != "toggle" {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for layer notification")
	}
}

func TestServeEffects(t *testing.T) {
	server := connectOrSkip(t, "keymux-test-server")
	caller := connectOrSkip(t, "keymux-test-caller")

	var (
		mu       sync.Mutex
		requests []string
	)
	if err := server.ServeEffects(func(req EffectRequest) error {
		mu.Lock()
		requests = append(requests, req.Effect)
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("ServeEffects() error = %v", err)
	}

	replies := make(chan EffectReply, 1)
	if err := caller.Subscribe(Topics{}.IPCReply(), 1, func(_ string, payload []byte) error {
		var r EffectReply
		if err := json.Unmarshal(payload, &r); err != nil {
			return err
		}
		replies <- r
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := caller.PublishDefault(Topics{}.IPCEffect(), []byte(`{"id":"x1","effect":"Key(KEY_MUTE)"}`)); err != nil {
		t.Fatalf("PublishDefault() error = %v", err)
	}

	select {
	case r := <-replies:
		if !r.OK || r.ID != "x1" {
			t.Errorf("reply = %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reply")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 1 || requests[0] != "Key(KEY_MUTE)" {
		t.Errorf("requests = %v", requests)
	}
}

type recordLogger struct {
	mu     sync.Mutex
	errors int
	warns  int
}

func (l *recordLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func (l *recordLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

// fakeMessage implements paho's Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
