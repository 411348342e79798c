package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/duel/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		So(d.Size(), ShouldEqual, 0)

		Convey("When an effect is recorded for a match", func() {
			key := dedupe.Key("m1", dedupe.EffectLedgerCommit)
			first := d.SeenAndRecord(ctx, key)
			again := d.SeenAndRecord(ctx, key)

			Convey("Then only the first call is new", func() {
				So(key, ShouldEqual, "m1:ledger_commit")
				So(first, ShouldBeFalse)
				So(again, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then the same effect of another match is independent", func() {
				So(d.SeenAndRecord(ctx, dedupe.Key("m2", dedupe.EffectLedgerCommit)), ShouldBeFalse)
			})
		})
	})
}

func TestBoundedDeduper(t *testing.T) {
	Convey("Given a deduper bounded to 3 keys", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))

		for i := 0; i < 4; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
		}

		Convey("Then the oldest key was evicted", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "k3"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "k0"), ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 5000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i))
		}
		So(d.Size(), ShouldEqual, 5000)
	})
}

func TestConcurrentDeduper(t *testing.T) {
	Convey("Given many goroutines racing on one key", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "m1:capture_start_1") {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		So(winners, ShouldEqual, 1)
	})
}
