// Package events publishes detection events to an MQTT broker so that
// dashboards and other consumers can follow matches in real time.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kozaktomas/reunite/internal/config"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/logging"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 2 * time.Second
)

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("not connected to MQTT broker")

// DetectionEvent is the payload published for every logged detection.
type DetectionEvent struct {
	IdentityID string        `json:"identity_id"`
	Similarity float64       `json:"similarity"`
	BBox       database.BBox `json:"box"`
	Location   *geo.Point    `json:"location,omitempty"`
	EvidenceID int64         `json:"evidence_id"`
	AlertID    int64         `json:"alert_id,omitempty"`
	CameraID   string        `json:"camera_id,omitempty"`
	CapturedAt time.Time     `json:"captured_at"`
}

// Publisher publishes detection events.
type Publisher interface {
	PublishDetection(ctx context.Context, ev DetectionEvent) error
	Close()
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

// PublishDetection implements Publisher.
func (Noop) PublishDetection(context.Context, DetectionEvent) error { return nil }

// Close implements Publisher.
func (Noop) Close() {}

// publisher is the subset of mqtt.Client used for publishing.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	IsConnected() bool
}

// MQTTPublisher publishes events as JSON to a fixed topic. It is safe for
// concurrent use; the paho client serializes writes itself.
type MQTTPublisher struct {
	client publisher
	close  func()
	topic  string
	log    *slog.Logger
}

// NewMQTTPublisher connects to the broker described by cfg.
func NewMQTTPublisher(cfg *config.MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("MQTT broker is required")
	}
	log := logging.OrDiscard(logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to MQTT broker", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("connection to MQTT broker lost", "broker", cfg.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.New("MQTT connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connection error: %w", err)
	}

	return &MQTTPublisher{
		client: client,
		close:  func() { client.Disconnect(250) },
		topic:  cfg.Topic,
		log:    log,
	}, nil
}

// PublishDetection publishes one event with QoS 1. It fails fast while the
// broker is unreachable and waits at most publishTimeout for the ack.
func (p *MQTTPublisher) PublishDetection(ctx context.Context, ev DetectionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal detection event: %w", err)
	}

	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return errors.New("MQTT publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish detection event: %w", err)
	}
	p.log.Debug("published detection event", "topic", p.topic, "identity_id", ev.IdentityID)
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}
