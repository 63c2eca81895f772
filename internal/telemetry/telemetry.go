// Package telemetry publishes attitude and motor snapshots to an MQTT
// broker and accepts parameter commands on a command topic.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var connectFn = connectMQTT

type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Interval    time.Duration
	QoS         byte
}

// Client is the slice of an MQTT client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handle func(payload []byte)) error
	Close()
}

// Source is one snapshot stream published under prefix/Name.
type Source struct {
	Name     string
	Snapshot func() any
}

// CommandFunc handles one payload from the command topic.
type CommandFunc func(ctx context.Context, line string) error

type Publisher struct {
	cfg     Config
	sources []Source
	command CommandFunc
}

func New(cfg Config, command CommandFunc, sources ...Source) *Publisher {
	if cfg.ClientID == "" {
		cfg.ClientID = "rcgimbal"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "rcgimbal"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 200 * time.Millisecond
	}
	return &Publisher{cfg: cfg, sources: sources, command: command}
}

func (p *Publisher) topic(name string) string {
	return p.cfg.TopicPrefix + "/" + name
}

// Run connects and publishes every source each interval until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	c, err := connectFn(p.cfg)
	if err != nil {
		return fmt.Errorf("telemetry: connect %s: %w", p.cfg.Broker, err)
	}
	defer c.Close()
	log.Printf("telemetry: connected to %s (prefix=%s)", p.cfg.Broker, p.cfg.TopicPrefix)

	if p.command != nil {
		cmdTopic := p.topic("cmd")
		replyTopic := p.topic("cmd/reply")
		err := c.Subscribe(cmdTopic, p.cfg.QoS, func(payload []byte) {
			reply := "ok"
			if err := p.command(ctx, string(payload)); err != nil {
				reply = "err: " + err.Error()
			}
			if err := c.Publish(replyTopic, p.cfg.QoS, false, []byte(reply)); err != nil {
				log.Printf("telemetry: publish %s: %v", replyTopic, err)
			}
		})
		if err != nil {
			return fmt.Errorf("telemetry: subscribe %s: %w", cmdTopic, err)
		}
	}

	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			p.publishAll(c)
		}
	}
}

func (p *Publisher) publishAll(c Client) {
	for _, s := range p.sources {
		if s.Snapshot == nil {
			continue
		}
		b, err := json.Marshal(s.Snapshot())
		if err != nil {
			log.Printf("telemetry: encode %s: %v", s.Name, err)
			continue
		}
		if err := c.Publish(p.topic(s.Name), p.cfg.QoS, false, b); err != nil {
			log.Printf("telemetry: publish %s: %v", p.topic(s.Name), err)
		}
	}
}

type pahoClient struct {
	c mqtt.Client
}

func connectMQTT(cfg Config) (Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &pahoClient{c: c}, nil
}

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.c.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (p *pahoClient) Subscribe(topic string, qos byte, handle func(payload []byte)) error {
	token := p.c.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handle(msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (p *pahoClient) Close() {
	p.c.Disconnect(250)
}
