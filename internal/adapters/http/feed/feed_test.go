package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSource struct {
	mu       sync.Mutex
	current  service.Display
	watchers map[int]func(service.Display)
	next     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{watchers: make(map[int]func(service.Display))}
}

func (s *fakeSource) Display() service.Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *fakeSource) Watch(fn func(service.Display)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *fakeSource) publish(d service.Display) {
	s.mu.Lock()
	s.current = d
	fns := make([]func(service.Display), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

func (s *fakeSource) watching() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func readDisplay(conn *websocket.Conn) (service.Display, error) {
	var d service.Display
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return d, err
	}
	err = json.Unmarshal(msg, &d)
	return d, err
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestHub(t *testing.T) {
	Convey("Given a started hub behind a test server", t, func() {
		source := newFakeSource()
		source.current = service.Display{MatchID: "m1", Status: model.StatusWaiting}
		hub := NewHub(source, WithWriteTimeout(time.Second))
		hub.Start()
		srv := httptest.NewServer(hub)
		defer srv.Close()
		defer hub.Close()

		url := "ws" + strings.TrimPrefix(srv.URL, "http")
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("Then the current projection is sent on connect", func() {
			d, err := readDisplay(conn)
			So(err, ShouldBeNil)
			So(d.MatchID, ShouldEqual, "m1")
			So(d.Status, ShouldEqual, model.StatusWaiting)
		})

		Convey("Then every published projection is pushed", func() {
			_, err := readDisplay(conn)
			So(err, ShouldBeNil)
			So(waitFor(func() bool { return hub.Clients() == 1 }), ShouldBeTrue)

			source.publish(service.Display{MatchID: "m1", Status: model.StatusRound1Countdown, Countdown: 3})
			d, err := readDisplay(conn)
			So(err, ShouldBeNil)
			So(d.Status, ShouldEqual, model.StatusRound1Countdown)
			So(d.Countdown, ShouldEqual, 3)
		})

		Convey("Then a disconnecting client is forgotten", func() {
			So(waitFor(func() bool { return hub.Clients() == 1 }), ShouldBeTrue)
			_ = conn.Close()
			So(waitFor(func() bool { return hub.Clients() == 0 }), ShouldBeTrue)
		})

		Convey("Then closing the hub stops watching the source", func() {
			So(source.watching(), ShouldEqual, 1)
			hub.Close()
			So(source.watching(), ShouldEqual, 0)
			So(hub.Clients(), ShouldEqual, 0)
		})
	})
}

// serverConn returns the server side of a fresh websocket connection.
func serverConn(t *testing.T) (*websocket.Conn, func()) {
	conns := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- conn
	}))
	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return <-conns, func() {
		_ = peer.Close()
		srv.Close()
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	Convey("Given a client whose buffer is full", t, func() {
		hub := NewHub(newFakeSource(), WithSendBuffer(1))
		conn, cleanup := serverConn(t)
		defer cleanup()

		c := &client{conn: conn, send: make(chan []byte, 1)}
		hub.add(c)
		So(hub.Clients(), ShouldEqual, 1)

		Convey("When two projections are broadcast without a writer draining", func() {
			hub.broadcast(service.Display{MatchID: "m1"})
			hub.broadcast(service.Display{MatchID: "m1", Status: model.StatusWaiting})

			Convey("Then the client is disconnected after its buffered frame", func() {
				So(hub.Clients(), ShouldEqual, 0)
				msg, ok := <-c.send
				So(ok, ShouldBeTrue)
				So(string(msg), ShouldContainSubstring, `"match_id":"m1"`)
				_, ok = <-c.send
				So(ok, ShouldBeFalse)
			})
		})
	})
}
