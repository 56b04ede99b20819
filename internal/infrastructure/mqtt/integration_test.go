//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Requires a broker at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_RetainedStateRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pubCfg := testConfig()
	pubCfg.Broker.ClientID = "garagegate-int-pub"
	pub, err := New(pubCfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pub.Close()

	topic := "garagegate/int/state"
	if err := pub.PublishRetained(topic, []byte(`{"state":"open"}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	subCfg := testConfig()
	subCfg.Broker.ClientID = "garagegate-int-sub"
	sub, err := New(subCfg)
	if err != nil {
		t.Fatal(err)
	}

	var once sync.Once
	got := make(chan string, 1)
	// Subscribing before Connect exercises the deferred subscription path.
	if err := sub.Subscribe(topic, 1, func(_ string, payload []byte, _ bool) error {
		once.Do(func() { got <- string(payload) })
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := sub.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sub.Close()

	select {
	case payload := <-got:
		if payload != `{"state":"open"}` {
			t.Errorf("payload = %s", payload)
		}
	case <-ctx.Done():
		t.Fatal("retained message not delivered")
	}
}
