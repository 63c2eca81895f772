package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type message struct {
	topic   string
	payload string
}

type fakeClient struct {
	mu      sync.Mutex
	msgs    []message
	handler func([]byte)
	subErr  error
	closed  bool
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{topic, string(payload)})
	return nil
}

func (f *fakeClient) Subscribe(topic string, qos byte, handle func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.handler = handle
	return nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeClient) find(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.topic == topic {
			return m.payload, true
		}
	}
	return "", false
}

func (f *fakeClient) deliver(payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h([]byte(payload))
}

func withFakeClient(t *testing.T, c *fakeClient, err error) {
	t.Helper()
	old := connectFn
	connectFn = func(cfg Config) (Client, error) {
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	t.Cleanup(func() { connectFn = old })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRun_PublishesSources(t *testing.T) {
	c := &fakeClient{}
	withFakeClient(t, c, nil)

	p := New(Config{TopicPrefix: "gimbal", Interval: time.Millisecond}, nil,
		Source{Name: "attitude", Snapshot: func() any { return map[string]float64{"roll_deg": 1.5} }},
		Source{Name: "motor", Snapshot: func() any { return map[string]bool{"enabled": true} }},
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	waitFor(t, "motor topic", func() bool { _, ok := c.find("gimbal/motor"); return ok })
	if got, _ := c.find("gimbal/attitude"); got != `{"roll_deg":1.5}` {
		t.Fatalf("attitude payload=%q", got)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !c.closed {
		t.Fatalf("expected client closed")
	}
}

func TestRun_CommandTopic(t *testing.T) {
	c := &fakeClient{}
	withFakeClient(t, c, nil)

	var got []string
	var mu sync.Mutex
	cmd := func(ctx context.Context, line string) error {
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
		if strings.Contains(line, "bogus") {
			return errors.New("motorctl: unknown parameter \"bogus\"")
		}
		return nil
	}
	p := New(Config{Interval: time.Hour}, cmd)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	waitFor(t, "subscription", func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.handler != nil
	})
	c.deliver("set sz=100")
	if reply, _ := c.find("rcgimbal/cmd/reply"); reply != "ok" {
		t.Fatalf("reply=%q want ok", reply)
	}
	c.deliver("set bogus=1")
	c.mu.Lock()
	last := c.msgs[len(c.msgs)-1]
	c.mu.Unlock()
	if last.topic != "rcgimbal/cmd/reply" || !strings.HasPrefix(last.payload, "err: ") {
		t.Fatalf("last=%+v", last)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "set sz=100" {
		t.Fatalf("commands=%v", got)
	}
}

func TestRun_ConnectAndSubscribeErrors(t *testing.T) {
	withFakeClient(t, nil, errors.New("connection refused"))
	err := New(Config{Broker: "tcp://nowhere:1883"}, nil).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "tcp://nowhere:1883") {
		t.Fatalf("err=%v", err)
	}

	c := &fakeClient{subErr: errors.New("not authorized")}
	withFakeClient(t, c, nil)
	noop := func(context.Context, string) error { return nil }
	if err := New(Config{}, noop).Run(context.Background()); err == nil {
		t.Fatalf("expected subscribe error")
	}
	if !c.closed {
		t.Fatalf("expected client closed after subscribe failure")
	}
}
