package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/duel/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.TimeUnit, convey.ShouldEqual, time.Second)
				convey.So(cfg.PointsReason, convey.ShouldEqual, "Pontos ganhos no Jogo de Movimento")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("DUEL_ADDR", ":8080")
			_ = os.Setenv("DUEL_TIME_UNIT", "50ms")
			_ = os.Setenv("DUEL_COUNTDOWN_START", "5")
			_ = os.Setenv("DUEL_TELEMETRY_MODE", "mqtt")
			_ = os.Setenv("DUEL_MQTT_BROKER", "tcp://broker:1883")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.TimeUnit, convey.ShouldEqual, 50*time.Millisecond)
				convey.So(cfg.CountdownStart, convey.ShouldEqual, 5)
				convey.So(cfg.TelemetryMode, convey.ShouldEqual, config.TelemetryMQTT)
				convey.So(cfg.MQTTBroker, convey.ShouldEqual, "tcp://broker:1883")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "duel.yaml")
			yaml := "addr: \":7070\"\nleaderboard_size: 5\nledger_driver: sqlite\nledger_dsn: \"file:test.db\"\n"
			convey.So(os.WriteFile(path, []byte(yaml), 0o600), convey.ShouldBeNil)

			_ = os.Setenv("DUEL_CONFIG", path)
			_ = os.Setenv("DUEL_LEADERBOARD_SIZE", "7")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env wins over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.LedgerDriver, convey.ShouldEqual, config.LedgerSQLite)
				convey.So(cfg.LedgerDSN, convey.ShouldEqual, "file:test.db")
				convey.So(cfg.LeaderboardSize, convey.ShouldEqual, 7)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("DUEL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When env produces an invalid config", func() {
			_ = os.Setenv("DUEL_INBOX_SIZE", "0")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation should fail", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, name := range []string{
		"DUEL_CONFIG",
		"DUEL_ADDR",
		"DUEL_TIME_UNIT",
		"DUEL_COUNTDOWN_START",
		"DUEL_TELEMETRY_MODE",
		"DUEL_MQTT_BROKER",
		"DUEL_LEADERBOARD_SIZE",
		"DUEL_INBOX_SIZE",
	} {
		_ = os.Unsetenv(name)
	}
}
