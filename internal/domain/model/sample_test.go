package model_test

import (
	"encoding/json"
	"testing"

	model "github.com/okian/posecap/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestVec2Norm(t *testing.T) {
	convey.Convey("Given center offsets", t, func() {
		convey.Convey("When the offset is zero", func() {
			convey.So(model.Vec2{}.Norm(), convey.ShouldEqual, 0)
		})

		convey.Convey("When the offset is a 3-4-5 triangle", func() {
			convey.So(model.Vec2{X: 0.3, Y: -0.4}.Norm(), convey.ShouldAlmostEqual, 0.5, 1e-9)
		})

		convey.Convey("When the offset is diagonal", func() {
			convey.So(model.Vec2{X: 0.05, Y: 0.05}.Norm(), convey.ShouldAlmostEqual, 0.0707, 1e-4)
		})
	})
}

func TestImageHandle(t *testing.T) {
	convey.Convey("Given image handles", t, func() {
		convey.So(model.ImageHandle{}.IsZero(), convey.ShouldBeTrue)
		convey.So(model.ImageHandle{ID: "img-1"}.IsZero(), convey.ShouldBeFalse)
	})
}

func TestFeedbackEventJSON(t *testing.T) {
	convey.Convey("Given a countdown feedback event", t, func() {
		ev := model.FeedbackEvent{Kind: model.FeedbackCountdown, Angle: 1, Count: 2}

		convey.Convey("When encoded", func() {
			raw, err := json.Marshal(ev)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then empty optional fields are omitted", func() {
				s := string(raw)
				convey.So(s, convey.ShouldContainSubstring, `"kind":"countdown"`)
				convey.So(s, convey.ShouldContainSubstring, `"count":2`)
				convey.So(s, convey.ShouldNotContainSubstring, "reason")
				convey.So(s, convey.ShouldNotContainSubstring, "progress")
			})
		})
	})
}
