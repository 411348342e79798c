package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// MQTTConfig holds the broker connection settings.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	Username    string
	Password    string
	Timeout     time.Duration
	ClientID    string
}

// broker is the part of mqtt.Client the telemetry client uses.
type broker interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// MQTTOption configures an MQTTClient.
type MQTTOption func(*MQTTClient)

// WithMQTTLogger sets the client logger.
func WithMQTTLogger(l logger.Logger) MQTTOption {
	return func(c *MQTTClient) {
		if l != nil {
			c.log = l
		}
	}
}

func withBroker(b broker) MQTTOption {
	return func(c *MQTTClient) { c.client = b }
}

// MQTTClient controls bands and caches their readings over MQTT.
type MQTTClient struct {
	cfg      MQTTConfig
	client   broker
	readings *readings
	log      logger.Logger
	once     sync.Once
}

// NewMQTTClient creates a client. Connect must be called before use.
func NewMQTTClient(cfg MQTTConfig, opts ...MQTTOption) *MQTTClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("duel-display-%d", time.Now().Unix())
	}
	c := &MQTTClient{
		cfg:      cfg,
		readings: newReadings(),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = mqtt.NewClient(c.clientOptions())
	}
	return c
}

func (c *MQTTClient) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(c.cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		metrics.RecordTelemetryError("connection_lost")
		c.log.Warn(context.Background(), "mqtt connection lost, reconnecting", logger.Error(err))
	}
	return opts
}

// Connect dials the broker and subscribes to every band's scores topic.
func (c *MQTTClient) Connect(ctx context.Context) error {
	c.log.Info(ctx, "connecting to mqtt broker", logger.String("broker", c.cfg.Broker), logger.String("client_id", c.cfg.ClientID))
	if err := wait(c.client.Connect(), c.cfg.Timeout); err != nil {
		metrics.RecordTelemetryError("connect")
		return errors.Wrapf(err, "mqtt connect %s", c.cfg.Broker)
	}
	return nil
}

// Close disconnects from the broker.
func (c *MQTTClient) Close() {
	c.once.Do(func() {
		if c.client.IsConnected() {
			c.client.Disconnect(250)
		}
	})
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	ctx := context.Background()
	topic := ScoresWildcard(c.cfg.TopicPrefix)
	if err := wait(client.Subscribe(topic, 0, c.onMessage), c.cfg.Timeout); err != nil {
		metrics.RecordTelemetryError("subscribe")
		c.log.Error(ctx, "mqtt subscribe failed", logger.String("topic", topic), logger.Error(err))
		return
	}
	c.log.Info(ctx, "subscribed to band scores", logger.String("topic", topic))
}

func (c *MQTTClient) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.handleMessage(msg.Topic(), msg.Payload())
}

func (c *MQTTClient) handleMessage(topic string, body []byte) {
	id, ok := IDFromTopic(c.cfg.TopicPrefix, topic)
	if !ok {
		return
	}
	snap, err := DecodeScores(body)
	if err != nil {
		metrics.RecordTelemetryError("decode")
		c.log.Debug(context.Background(), "dropping malformed scores", logger.String("topic", topic), logger.Error(err))
		return
	}
	c.readings.put(id, snap)
}

// StartCapture tells each band to start streaming.
func (c *MQTTClient) StartCapture(ctx context.Context, ids []string) error {
	return c.control(ctx, CommandStart, ids)
}

// StopCapture tells each band to stop streaming.
func (c *MQTTClient) StopCapture(ctx context.Context, ids []string) error {
	return c.control(ctx, CommandStop, ids)
}

// ReadScores returns the latest reading of id.
func (c *MQTTClient) ReadScores(_ context.Context, id string) (model.BandScoreSnapshot, error) {
	return c.readings.get(id)
}

func (c *MQTTClient) control(ctx context.Context, command string, ids []string) error {
	if !c.client.IsConnected() {
		metrics.RecordTelemetryError(command)
		return ErrNotConnected
	}
	start := time.Now()
	defer func() {
		metrics.RecordTelemetryLatency(command, float64(time.Since(start).Milliseconds()))
	}()

	body, err := json.Marshal(ControlPayload{Command: command, TS: time.Now().UnixMilli()})
	if err != nil {
		return errors.Wrap(err, "encode control payload")
	}

	var failed error
	for _, id := range ids {
		topic := ControlTopic(c.cfg.TopicPrefix, id)
		if err := wait(c.client.Publish(topic, 1, false, body), c.cfg.Timeout); err != nil {
			metrics.RecordTelemetryError(command)
			failed = errors.Wrapf(err, "%s capture on %s", command, topic)
			continue
		}
		c.log.Debug(ctx, "capture command sent", logger.String("topic", topic), logger.String("command", command))
	}
	return failed
}

func wait(t mqtt.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return errors.New("mqtt operation timed out")
	}
	return t.Error()
}
