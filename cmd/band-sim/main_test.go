package main

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCommands(t *testing.T) {
	Convey("Given the band-sim command tree", t, func() {
		root := newRootCmd()

		Convey("Then the run flags parse into durations and id lists", func() {
			So(root.Flags().Parse([]string{"--bands", "010,030", "--interval", "100ms"}), ShouldBeNil)
			ids, err := root.Flags().GetStringSlice("bands")
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []string{"010", "030"})
			iv, err := root.Flags().GetDuration("interval")
			So(err, ShouldBeNil)
			So(iv, ShouldEqual, 100*time.Millisecond)
		})

		Convey("Then play is registered with its own flags", func() {
			play, _, err := root.Find([]string{"play"})
			So(err, ShouldBeNil)
			So(play.Name(), ShouldEqual, "play")
			So(play.Flags().Lookup("url").DefValue, ShouldEqual, "http://localhost:9080")
			So(play.Flags().Lookup("round1").DefValue, ShouldEqual, "10")
		})
	})
}
