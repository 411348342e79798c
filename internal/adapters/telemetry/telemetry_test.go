package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/duel/internal/domain/model"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic string
	body  []byte
}

type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	published  []published
}

func (b *fakeBroker) Connect() mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return &fakeToken{}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return &fakeToken{err: b.publishErr}
	}
	b.published = append(b.published, published{topic: topic, body: payload.([]byte)})
	return &fakeToken{}
}

func (b *fakeBroker) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}

func TestPayloads(t *testing.T) {
	Convey("Given band topics and payloads", t, func() {
		So(ControlTopic("bands", "010"), ShouldEqual, "bands/010/control")
		So(ScoresTopic("bands", "020"), ShouldEqual, "bands/020/scores")
		So(ScoresWildcard("bands"), ShouldEqual, "bands/+/scores")

		id, ok := IDFromTopic("bands", "bands/010/scores")
		So(ok, ShouldBeTrue)
		So(id, ShouldEqual, "010")
		_, ok = IDFromTopic("bands", "other/010/scores")
		So(ok, ShouldBeFalse)
		_, ok = IDFromTopic("bands", "bands/010")
		So(ok, ShouldBeFalse)

		Convey("When a scores body is decoded", func() {
			snap, err := DecodeScores([]byte(`{"scoreX":{"value":-12.5},"scoreY":{"value":3}}`))

			Convey("Then present axes are kept and absent ones omitted", func() {
				So(err, ShouldBeNil)
				So(snap, ShouldResemble, model.BandScoreSnapshot{model.AxisX: -12.5, model.AxisY: 3})
			})

			Convey("Then it round-trips through PayloadFromSnapshot", func() {
				body, _ := json.Marshal(PayloadFromSnapshot(snap))
				again, err := DecodeScores(body)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, snap)
			})
		})

		Convey("When the body is not JSON", func() {
			_, err := DecodeScores([]byte("not json"))
			So(errors.Is(err, ErrBadPayload), ShouldBeTrue)
		})

		Convey("When a control body is decoded", func() {
			p, err := DecodeControl([]byte(`{"command":"start","ts":1700000000000}`))
			So(err, ShouldBeNil)
			So(p.Command, ShouldEqual, CommandStart)

			_, err = DecodeControl([]byte(`{"command":"reboot"}`))
			So(errors.Is(err, ErrBadPayload), ShouldBeTrue)
		})
	})
}

func TestMQTTClient(t *testing.T) {
	Convey("Given an MQTT client on a fake broker", t, func() {
		ctx := context.Background()
		b := &fakeBroker{}
		c := NewMQTTClient(MQTTConfig{Broker: "tcp://test:1883", TopicPrefix: "bands"}, withBroker(b))

		Convey("When not connected", func() {
			err := c.StartCapture(ctx, []string{"010"})
			So(errors.Is(err, ErrNotConnected), ShouldBeTrue)
		})

		Convey("When connected", func() {
			So(c.Connect(ctx), ShouldBeNil)

			Convey("Then capture commands go to each band's control topic", func() {
				So(c.StartCapture(ctx, []string{"010", "020"}), ShouldBeNil)
				So(c.StopCapture(ctx, []string{"010"}), ShouldBeNil)

				So(len(b.published), ShouldEqual, 3)
				So(b.published[0].topic, ShouldEqual, "bands/010/control")
				So(b.published[1].topic, ShouldEqual, "bands/020/control")

				var cmd ControlPayload
				So(json.Unmarshal(b.published[2].body, &cmd), ShouldBeNil)
				So(cmd.Command, ShouldEqual, CommandStop)
			})

			Convey("Then a publish failure is returned", func() {
				b.publishErr = errors.New("broker refused")
				So(c.StartCapture(ctx, []string{"010"}), ShouldNotBeNil)
			})

			Convey("Then readings are unavailable until a band reports", func() {
				_, err := c.ReadScores(ctx, "010")
				So(errors.Is(err, ErrNoReading), ShouldBeTrue)

				c.handleMessage("bands/010/scores", []byte(`{"scoreZ":{"value":42}}`))
				c.handleMessage("bands/020/scores", []byte(`garbage`))

				snap, err := c.ReadScores(ctx, "010")
				So(err, ShouldBeNil)
				So(snap[model.AxisZ], ShouldEqual, 42)

				_, err = c.ReadScores(ctx, "020")
				So(errors.Is(err, ErrNoReading), ShouldBeTrue)
			})

			Convey("Then Close disconnects once", func() {
				c.Close()
				c.Close()
				So(b.IsConnected(), ShouldBeFalse)
			})
		})
	})
}

func TestSimulator(t *testing.T) {
	Convey("Given a simulator", t, func() {
		ctx := context.Background()
		sim := NewSimulator(7, WithStep(10), WithCeiling(25))

		_, err := sim.ReadScores(ctx, "010")
		So(errors.Is(err, ErrNoReading), ShouldBeTrue)

		Convey("When a band captures", func() {
			So(sim.StartCapture(ctx, []string{"010"}), ShouldBeNil)
			So(sim.Capturing("010"), ShouldBeTrue)

			var last model.BandScoreSnapshot
			for i := 0; i < 50; i++ {
				last, err = sim.ReadScores(ctx, "010")
				So(err, ShouldBeNil)
			}

			Convey("Then magnitudes grow but stay under the ceiling", func() {
				for _, v := range last {
					So(v, ShouldBeBetweenOrEqual, -25, 25)
				}
			})

			Convey("Then readings freeze once capture stops", func() {
				So(sim.StopCapture(ctx, []string{"010"}), ShouldBeNil)
				a, _ := sim.ReadScores(ctx, "010")
				b, _ := sim.ReadScores(ctx, "010")
				So(a, ShouldResemble, b)
			})
		})
	})
}
