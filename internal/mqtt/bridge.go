// Package mqtt routes MQTT command topics into the device registry.
//
// For a topic prefix P the bridge subscribes to
//
//	P/<address>/set         payload: device.EventRequest JSON
//	P/<address>/connect
//	P/<address>/disconnect
//
// and publishes {"ok":bool,"error":string} to P/<address>/result after each command.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/ledctl/internal/device"
	"github.com/srg/ledctl/internal/led"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	maxQoS                   = 2
)

const (
	ActionSet        = "set"
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	resultSuffix     = "result"
)

// Client is the subset of pahomqtt.Client the bridge uses
type Client interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// ClientFactory creates the paho client.
// This is a variable so that it can be overridden in tests.
var ClientFactory = func(opts *pahomqtt.ClientOptions) Client {
	return pahomqtt.NewClient(opts)
}

// Options configures a Bridge
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Result is published to <prefix>/<address>/result after every command
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Bridge subscribes to device command topics and applies them to a registry
type Bridge struct {
	opts     Options
	registry *led.Registry
	logger   *logrus.Logger
	client   Client

	ctx        context.Context
	ctxMu      sync.RWMutex
	subscribed atomic.Bool
}

// NewBridge validates opts and creates a bridge. Nothing connects until Start.
func NewBridge(opts Options, registry *led.Registry, logger *logrus.Logger) (*Bridge, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if opts.QoS > maxQoS {
		return nil, fmt.Errorf("invalid QoS %d (must be 0, 1 or 2)", opts.QoS)
	}
	opts.TopicPrefix = strings.Trim(opts.TopicPrefix, "/")
	if opts.TopicPrefix == "" {
		return nil, fmt.Errorf("mqtt topic prefix is required")
	}
	if strings.ContainsAny(opts.TopicPrefix, "+#") {
		return nil, fmt.Errorf("mqtt topic prefix %q must not contain wildcards", opts.TopicPrefix)
	}

	b := &Bridge{
		opts:     opts,
		registry: registry,
		logger:   logger,
	}
	b.client = ClientFactory(b.clientOptions())
	return b, nil
}

func (b *Bridge) clientOptions() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(b.opts.Broker)
	opts.SetClientID(b.opts.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	// Device operations block for a scan or a dial, so messages must not serialize
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		if !b.subscribed.Load() {
			return
		}
		b.logger.Info("MQTT reconnected, restoring subscriptions")
		if err := b.subscribe(); err != nil {
			b.logger.WithField("error", err).Error("Failed to restore MQTT subscriptions")
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		b.logger.WithField("error", err).Warn("MQTT connection lost")
	})
	return opts
}

// Start connects to the broker and subscribes to the command topics.
// ctx bounds every device operation triggered by a message.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctxMu.Lock()
	b.ctx = ctx
	b.ctxMu.Unlock()

	if err := wait(b.client.Connect(), defaultConnectTimeout); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", b.opts.Broker, err)
	}
	if err := b.subscribe(); err != nil {
		b.client.Disconnect(defaultDisconnectQuiesce)
		return err
	}
	b.subscribed.Store(true)

	b.logger.WithFields(logrus.Fields{
		"broker": b.opts.Broker,
		"prefix": b.opts.TopicPrefix,
	}).Info("MQTT bridge started")
	return nil
}

// Close disconnects from the broker
func (b *Bridge) Close() error {
	if !b.subscribed.Swap(false) {
		return nil
	}
	b.client.Disconnect(defaultDisconnectQuiesce)
	b.logger.Info("MQTT bridge stopped")
	return nil
}

// CommandTopics returns the subscribed topic filters
func (b *Bridge) CommandTopics() []string {
	return []string{
		b.topic("+", ActionSet),
		b.topic("+", ActionConnect),
		b.topic("+", ActionDisconnect),
	}
}

// ResultTopic returns the topic results for addr are published to
func (b *Bridge) ResultTopic(addr device.Address) string {
	return b.topic(addr.String(), resultSuffix)
}

func (b *Bridge) topic(addr, action string) string {
	return b.opts.TopicPrefix + "/" + addr + "/" + action
}

func (b *Bridge) subscribe() error {
	for _, filter := range b.CommandTopics() {
		if err := wait(b.client.Subscribe(filter, b.opts.QoS, b.onMessage), defaultPublishTimeout); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
		}
	}
	return nil
}

func (b *Bridge) onMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	b.ctxMu.RLock()
	ctx := b.ctx
	b.ctxMu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	b.Handle(ctx, msg.Topic(), msg.Payload())
}

// Handle applies one command message and publishes its result. Topics that do
// not name a valid address and action are logged and dropped.
func (b *Bridge) Handle(ctx context.Context, topic string, payload []byte) {
	log := b.logger.WithField("topic", topic)

	addr, action, err := b.parseTopic(topic)
	if err != nil {
		log.WithField("error", err).Warn("Ignoring MQTT message")
		return
	}

	err = b.apply(ctx, addr, action, payload)
	res := Result{OK: err == nil}
	if err != nil {
		res.Error = err.Error()
		log.WithField("error", err).Warn("MQTT command failed")
	} else {
		log.Debug("MQTT command applied")
	}

	if err := b.publish(b.ResultTopic(addr), res); err != nil {
		log.WithField("error", err).Error("Failed to publish MQTT result")
	}
}

func (b *Bridge) parseTopic(topic string) (device.Address, string, error) {
	rest, ok := strings.CutPrefix(topic, b.opts.TopicPrefix+"/")
	if !ok {
		return "", "", fmt.Errorf("topic outside prefix %s", b.opts.TopicPrefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected <address>/<action>")
	}
	addr, err := device.ParseAddress(parts[0])
	if err != nil {
		return "", "", err
	}
	switch parts[1] {
	case ActionSet, ActionConnect, ActionDisconnect:
		return addr, parts[1], nil
	default:
		return "", "", fmt.Errorf("unknown action %q", parts[1])
	}
}

func (b *Bridge) apply(ctx context.Context, addr device.Address, action string, payload []byte) error {
	switch action {
	case ActionConnect:
		return b.registry.Connect(ctx, addr)
	case ActionDisconnect:
		return b.registry.Disconnect(ctx, addr)
	default:
		var req device.EventRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return &device.MalformedInputError{Input: string(payload), Reason: "event must be a JSON object"}
		}
		return b.registry.OnEvent(ctx, addr, req.Event())
	}
}

func (b *Bridge) publish(topic string, res Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return wait(b.client.Publish(topic, b.opts.QoS, false, payload), defaultPublishTimeout)
}

func wait(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %v", timeout)
	}
	return token.Error()
}
