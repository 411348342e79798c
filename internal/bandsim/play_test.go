package bandsim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/duel/internal/adapters/eventstore"
	"github.com/okian/duel/internal/adapters/http/api"
	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/adapters/telemetry"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/result"
)

// signalStore reports when the machine has subscribed.
type signalStore struct {
	*eventstore.MemoryStore
	once  sync.Once
	ready chan struct{}
}

func (s *signalStore) Subscribe(fn func(*model.GameEvent)) func() {
	cancel := s.MemoryStore.Subscribe(fn)
	s.once.Do(func() { close(s.ready) })
	return cancel
}

func fastTimings() service.Timings {
	return service.Timings{
		Unit:                20 * time.Millisecond,
		Autostart:           20 * time.Millisecond,
		IntroDwell:          40 * time.Millisecond,
		CountdownStart:      3,
		Settle:              40 * time.Millisecond,
		FinalSampleDelay:    10 * time.Millisecond,
		RoundClockInterval:  5 * time.Millisecond,
		SampleInterval:      20 * time.Millisecond,
		LeaderboardDelay:    40 * time.Millisecond,
		LeaderboardInterval: 40 * time.Millisecond,
		LeaderboardSize:     5,
	}
}

func playConfig(base string) PlayConfig {
	cfg := DefaultPlayConfig()
	cfg.BaseURL = base
	cfg.Timeout = time.Second
	cfg.Poll = 5 * time.Millisecond
	cfg.Deadline = 10 * time.Second
	cfg.Rounds[0].Duration = 3
	cfg.Rounds[1].Duration = 3
	return cfg
}

func TestPlay(t *testing.T) {
	Convey("Given a display service with simulated bands", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store := &signalStore{MemoryStore: eventstore.NewMemoryStore(), ready: make(chan struct{})}
		ledger := repository.NewMemoryLedger()
		machine := service.New(store, telemetry.NewSimulator(3), ledger, service.WithTimings(fastTimings()))
		done := make(chan error, 1)
		go func() { done <- machine.Run(ctx) }()
		<-store.ready

		mux := http.NewServeMux()
		api.NewServer(api.Dependencies{
			Store:               store,
			Display:             machine,
			Leaderboard:         ledger,
			Stats:               machine,
			MaxLeaderboardLimit: 50,
		}).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When a match is played to the end", func() {
			report, err := Play(ctx, playConfig(srv.URL), nil)

			Convey("Then the winners agree with the totals", func() {
				So(err, ShouldBeNil)
				So(report.MatchID, ShouldNotBeEmpty)
				So(report.Phases[len(report.Phases)-1], ShouldEqual, model.StatusFinished)
				So(report.Winner, ShouldEqual, result.ResolveWinner(report.Totals.Band010, report.Totals.Band020))
				So(report.RoundWinners[0].Decided(), ShouldBeTrue)
				So(report.RoundWinners[1].Decided(), ShouldBeTrue)
				So(report.Leaderboard.Metric, ShouldEqual, model.MetricPoints)
			})

			Convey("Then the ledger holds the credited points", func() {
				So(err, ShouldBeNil)
				top, lerr := ledger.TopByPoints(ctx, 10)
				So(lerr, ShouldBeNil)
				sum := 0
				for _, e := range top {
					sum += e.Points
				}
				So(sum, ShouldEqual, report.Totals.Band010+report.Totals.Band020)
			})
		})

		cancel()
		So(<-done, ShouldBeNil)
	})
}

func TestPlayFailures(t *testing.T) {
	Convey("Given a service that is not healthy", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := Play(context.Background(), playConfig(srv.URL), nil)
		So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
	})

	Convey("Given a service whose display shows another match", t, func() {
		srv := stubService(func() service.Display {
			return service.Display{MatchID: "other", Status: model.StatusWaiting}
		})
		defer srv.Close()

		report, err := Play(context.Background(), playConfig(srv.URL), nil)
		So(errors.Is(err, ErrReplaced), ShouldBeTrue)
		So(report.MatchID, ShouldEqual, "m1")
	})

	Convey("Given a match that never finishes", t, func() {
		srv := stubService(func() service.Display {
			return service.Display{MatchID: "m1", Status: model.StatusRound1Active}
		})
		defer srv.Close()

		cfg := playConfig(srv.URL)
		cfg.Deadline = 30 * time.Millisecond
		_, err := Play(context.Background(), cfg, nil)
		So(errors.Is(err, ErrDeadline), ShouldBeTrue)
	})

	Convey("Given a finished display announcing the wrong winner", t, func() {
		srv := stubService(func() service.Display {
			totals := result.Scores{Band010: 10, Band020: 20}
			return service.Display{
				MatchID:      "m1",
				Status:       model.StatusFinished,
				LivePoints:   totals,
				Totals:       &totals,
				RoundWinners: [model.RoundCount]model.Winner{model.WinnerBand010, model.WinnerBand020},
				Winner:       model.WinnerBand010,
			}
		})
		defer srv.Close()

		_, err := Play(context.Background(), playConfig(srv.URL), nil)
		So(errors.Is(err, ErrVerification), ShouldBeTrue)
	})
}

func stubService(display func() service.Display) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {})
	mux.HandleFunc("/game", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(model.GameEvent{ID: "m1", Status: model.StatusWaiting})
			return
		}
		_ = json.NewEncoder(w).Encode(display())
	})
	mux.HandleFunc("/leaderboard", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"metric":"points","entries":[]}`))
	})
	return httptest.NewServer(mux)
}
