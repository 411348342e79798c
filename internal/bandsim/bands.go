package bandsim

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/okian/duel/internal/adapters/telemetry"
	"github.com/okian/duel/pkg/logger"
)

// client is the part of mqtt.Client the bands use.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Option configures Bands.
type Option func(*Bands)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bands) {
		if l != nil {
			b.log = l
		}
	}
}

func withClient(c client) Option {
	return func(b *Bands) { b.client = c }
}

// Bands answers capture commands for a set of band ids and streams
// simulated readings while they capture.
type Bands struct {
	cfg       Config
	sim       *telemetry.Simulator
	client    client
	log       logger.Logger
	published atomic.Int64
	commands  atomic.Int64
}

// New creates simulated bands. Run connects them to the broker.
func New(cfg Config, opts ...Option) *Bands {
	if cfg.Interval <= 0 {
		cfg.Interval = 250 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("duel-bands-%d", time.Now().UnixNano())
	}
	b := &Bands{
		cfg: cfg,
		sim: telemetry.NewSimulator(cfg.Seed, telemetry.WithStep(cfg.Step), telemetry.WithCeiling(cfg.Ceiling)),
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.client == nil {
		b.client = mqtt.NewClient(b.clientOptions())
	}
	return b
}

func (b *Bands) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetConnectTimeout(b.cfg.Timeout)
	opts.SetAutoReconnect(true)
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		b.log.Warn(context.Background(), "mqtt connection lost, reconnecting", logger.Error(err))
	}
	return opts
}

// Run connects, listens for commands and publishes readings every
// interval until ctx is cancelled.
func (b *Bands) Run(ctx context.Context) error {
	b.log.Info(ctx, "starting simulated bands",
		logger.String("broker", b.cfg.Broker),
		logger.Any("bands", b.cfg.Bands),
		logger.Duration("interval", b.cfg.Interval))

	if err := wait(b.client.Connect(), b.cfg.Timeout); err != nil {
		return errors.Wrapf(err, "mqtt connect %s", b.cfg.Broker)
	}
	defer b.client.Disconnect(250)

	topic := telemetry.ControlWildcard(b.cfg.TopicPrefix)
	if err := wait(b.client.Subscribe(topic, 1, b.onControl), b.cfg.Timeout); err != nil {
		return errors.Wrapf(err, "mqtt subscribe %s", topic)
	}
	b.log.Info(ctx, "listening for capture commands", logger.String("topic", topic))

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.log.Info(ctx, "simulated bands stopped",
				logger.Any("commands", b.commands.Load()),
				logger.Any("published", b.published.Load()))
			return nil
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

func (b *Bands) onControl(_ mqtt.Client, msg mqtt.Message) {
	if err := b.HandleControl(context.Background(), msg.Topic(), msg.Payload()); err != nil {
		b.log.Debug(context.Background(), "ignoring control message", logger.String("topic", msg.Topic()), logger.Error(err))
	}
}

// HandleControl applies a start or stop command addressed to one of the bands.
func (b *Bands) HandleControl(ctx context.Context, topic string, body []byte) error {
	id, ok := telemetry.IDFromTopic(b.cfg.TopicPrefix, topic)
	if !ok || !slices.Contains(b.cfg.Bands, id) {
		return errors.Errorf("no simulated band for topic %s", topic)
	}
	cmd, err := telemetry.DecodeControl(body)
	if err != nil {
		return err
	}
	b.commands.Add(1)
	b.log.Info(ctx, "capture command", logger.String("band", id), logger.String("command", cmd.Command))
	if cmd.Command == telemetry.CommandStart {
		return b.sim.StartCapture(ctx, []string{id})
	}
	return b.sim.StopCapture(ctx, []string{id})
}

// Tick publishes one reading for every capturing band and returns how
// many were sent.
func (b *Bands) Tick(ctx context.Context) int {
	sent := 0
	for _, id := range b.cfg.Bands {
		if !b.sim.Capturing(id) {
			continue
		}
		snap, err := b.sim.ReadScores(ctx, id)
		if err != nil {
			continue
		}
		body, err := json.Marshal(telemetry.PayloadFromSnapshot(snap))
		if err != nil {
			b.log.Error(ctx, "encode scores", logger.Error(err))
			continue
		}
		topic := telemetry.ScoresTopic(b.cfg.TopicPrefix, id)
		if err := wait(b.client.Publish(topic, 0, false, body), b.cfg.Timeout); err != nil {
			b.log.Warn(ctx, "publish scores failed", logger.String("topic", topic), logger.Error(err))
			continue
		}
		sent++
	}
	b.published.Add(int64(sent))
	return sent
}

// Published returns the number of readings sent so far.
func (b *Bands) Published() int64 { return b.published.Load() }

func wait(t mqtt.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return errors.New("mqtt operation timed out")
	}
	return t.Error()
}
