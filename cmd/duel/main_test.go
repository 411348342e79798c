package main

import (
	"context"
	"testing"
	"time"

	"github.com/okian/duel/internal/adapters/http/feed"
	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/adapters/telemetry"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/config"
	"github.com/okian/duel/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestTimingsFrom(t *testing.T) {
	convey.Convey("Given the default configuration with a faster time unit", t, func() {
		cfg := config.New()
		cfg.TimeUnit = 200 * time.Millisecond

		convey.Convey("Then unit counts scale with the unit and fixed delays do not", func() {
			tm := timingsFrom(cfg)
			convey.So(tm.Unit, convey.ShouldEqual, 200*time.Millisecond)
			convey.So(tm.IntroDwell, convey.ShouldEqual, time.Second)
			convey.So(tm.Settle, convey.ShouldEqual, 600*time.Millisecond)
			convey.So(tm.SampleInterval, convey.ShouldEqual, 200*time.Millisecond)
			convey.So(tm.LeaderboardDelay, convey.ShouldEqual, 1600*time.Millisecond)
			convey.So(tm.LeaderboardInterval, convey.ShouldEqual, 1600*time.Millisecond)
			convey.So(tm.CountdownStart, convey.ShouldEqual, 3)
			convey.So(tm.Autostart, convey.ShouldEqual, time.Second)
			convey.So(tm.FinalSampleDelay, convey.ShouldEqual, 500*time.Millisecond)
			convey.So(tm.RoundClockInterval, convey.ShouldEqual, 100*time.Millisecond)
			convey.So(tm.LeaderboardSize, convey.ShouldEqual, 10)
		})
	})
}

func TestAdapterSelection(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		ctx := context.Background()
		cfg := config.New()
		log := logger.Nop()

		convey.Convey("When telemetry is simulated", func() {
			bands, closeFn, err := openTelemetry(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer closeFn()
			_, ok := bands.(*telemetry.Simulator)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the ledger is in memory", func() {
			ledger, err := openLedger(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer ledger.Close()
			_, ok := ledger.(*repository.MemoryLedger)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the ledger is sqlite", func() {
			cfg.LedgerDriver = config.LedgerSQLite
			cfg.LedgerDSN = ":memory:"
			ledger, err := openLedger(ctx, cfg, log)
			convey.So(err, convey.ShouldBeNil)
			defer ledger.Close()
			n, err := ledger.Count(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldEqual, 0)
		})
	})
}

func TestStats(t *testing.T) {
	convey.Convey("Given a machine, ledger and feed hub", t, func() {
		ctx := context.Background()
		ledger := repository.NewMemoryLedger()
		machine := service.New(nil, nil, ledger)
		hub := feed.NewHub(machine)

		convey.Convey("Then stats merge machine, screen and ledger counters", func() {
			out := statsFunc(func() map[string]interface{} { return stats(ctx, machine, ledger, hub) }).Stats()
			convey.So(out["screens"], convey.ShouldEqual, 0)
			convey.So(out["ledgerUsers"], convey.ShouldEqual, 0)
			convey.So(out["running"], convey.ShouldEqual, false)
		})
	})
}
