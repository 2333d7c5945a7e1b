// internal/emitter/emitter.go

// Package emitter mirrors unit events onto an MQTT broker. Frames never
// leave the process; every other event type goes out as a JSON envelope
// on <prefix>/<unit>/<event-type>.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tamzrod/fieldrec/internal/config"
	"github.com/tamzrod/fieldrec/internal/display"
)

const (
	connectTimeout  = 5 * time.Second
	publishTimeout  = 2 * time.Second
	retryInterval   = 2 * time.Second
	maxReconnect    = 30 * time.Second
	disconnectGrace = 250 // milliseconds, paho wants uints
)

var ErrNotConnected = errors.New("emitter: not connected")

// Emitter publishes bus events to one broker connection.
type Emitter struct {
	broker   string
	clientID string
	prefix   string
	qos      byte
	log      *slog.Logger

	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// New validates the broker settings. A missing client id gets a random
// fieldrec-tagged one so parallel daemons never collide on the broker.
func New(cfg config.MQTTConfig, log *slog.Logger) (*Emitter, error) {
	if cfg.Broker == "" {
		return nil, errors.New("emitter: broker is required")
	}
	if cfg.TopicPrefix == "" {
		return nil, errors.New("emitter: topic prefix is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("emitter: qos %d out of range", cfg.QoS)
	}
	if log == nil {
		log = slog.Default()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "fieldrec-" + uuid.NewString()[:8]
	}
	return &Emitter{
		broker:    cfg.Broker,
		clientID:  clientID,
		prefix:    cfg.TopicPrefix,
		qos:       cfg.QoS,
		log:       log,
		published: make(map[string]uint64),
	}, nil
}

// Connect dials the broker and keeps reconnecting in the background
// from then on.
func (e *Emitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.broker))
	opts.SetClientID(e.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retryInterval)
	opts.SetMaxReconnectInterval(maxReconnect)

	opts.OnConnect = func(mqtt.Client) {
		e.setConnected(true)
		e.log.Info("mqtt connected", "broker", e.broker, "client_id", e.clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		e.setConnected(false)
		e.log.Warn("mqtt connection lost, reconnecting", "broker", e.broker, "error", err)
	}

	e.client = mqtt.NewClient(opts)
	e.log.Info("connecting to mqtt broker", "broker", e.broker)

	token := e.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("emitter: connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: connect: %w", err)
	}
	e.setConnected(true)
	return nil
}

// Run drains events until ctx is done or events closes. FrameReady is
// skipped; publish failures are logged, never fatal.
func (e *Emitter) Run(ctx context.Context, events <-chan display.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, skip := ev.(display.FrameReady); skip {
				continue
			}
			if err := e.publish(ev); err != nil {
				e.log.Warn("event publish failed",
					"unit", ev.Unit(), "event", ev.EventType(), "error", err)
			}
		}
	}
}

func (e *Emitter) publish(ev display.Event) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}
	topic := buildTopic(e.prefix, ev)
	payload, err := buildPayload(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("encode: %w", err)
	}
	token := e.client.Publish(topic, e.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return errors.New("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return err
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	e.log.Debug("event published", "topic", topic, "size", len(payload))
	return nil
}

// Disconnect drops the broker connection. Safe to call without a prior
// successful Connect.
func (e *Emitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(disconnectGrace)
		e.log.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats reports per-topic publish counts and total failures.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    atomic.LoadUint64(&e.errors),
	}
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *Emitter) countError() {
	atomic.AddUint64(&e.errors, 1)
}
