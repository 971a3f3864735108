package session_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/session"
	"github.com/okian/platecount/internal/domain/tracking"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeSource struct {
	kind   model.SourceKind
	name   string
	frames []model.Frame
	err    error
	pos    int
	art    model.Artifacts
}

func (s *fakeSource) Kind() model.SourceKind { return s.kind }
func (s *fakeSource) Name() string           { return s.name }
func (s *fakeSource) Close() error           { return nil }
func (s *fakeSource) Artifacts() model.Artifacts {
	return s.art
}

func (s *fakeSource) Next(context.Context) (model.Frame, error) {
	if s.pos >= len(s.frames) {
		if s.err != nil {
			return model.Frame{}, s.err
		}
		return model.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func frame(ts string, c model.Condition, texts ...string) model.Frame {
	f := model.Frame{Timestamp: ts, Condition: c}
	for _, t := range texts {
		f.Detections = append(f.Detections, model.Detection{Text: t})
	}
	return f
}

func TestRunVideo(t *testing.T) {
	Convey("Given a video source", t, func() {
		src := &fakeSource{
			kind: model.KindVideo,
			name: "clip.mp4",
			frames: []model.Frame{
				frame("00:00:01.000", model.Clear, "XYZ789"),
				frame("00:00:02.000", model.Foggy, tracking.Unreadable),
				frame("00:00:03.000", model.Clear, "XYZ78"),
				frame("00:00:04.000", model.Lowlight, "QQQ111"),
			},
			art: model.Artifacts{Video: "annotated_clip.mp4"},
		}

		Convey("When the session runs to the end", func() {
			res, err := session.Run(context.Background(), src)

			Convey("Then there is one row per vehicle with the last condition", func() {
				So(err, ShouldBeNil)
				So(res.Frames, ShouldEqual, 4)
				So(res.Condition, ShouldEqual, model.Lowlight)
				So(res.Rows, ShouldResemble, []model.Row{
					{Timestamp: "00:00:01.000", Plates: "XYZ789", VehicleCount: 1, Condition: model.Lowlight},
					{Timestamp: "00:00:02.000", Plates: tracking.Unreadable, VehicleCount: 1, Condition: model.Lowlight},
					{Timestamp: "00:00:04.000", Plates: "QQQ111", VehicleCount: 1, Condition: model.Lowlight},
				})
				So(res.TotalVehicles(), ShouldEqual, 3)
				So(res.Plates, ShouldResemble, []string{"QQQ111", tracking.Unreadable, "XYZ789"})
				So(res.Artifacts.Video, ShouldEqual, "annotated_clip.mp4")
			})
		})

		Convey("When only the first frames are read", func() {
			var seen []int
			res, err := session.Run(context.Background(), src,
				session.WithMaxFrames(2),
				session.WithProgress(func(n int) { seen = append(seen, n) }),
			)
			So(err, ShouldBeNil)
			So(res.Frames, ShouldEqual, 2)
			So(res.Rows, ShouldHaveLength, 2)
			So(seen, ShouldResemble, []int{1, 2})
		})

		Convey("When unreadable sightings must stay apart", func() {
			src.frames = append(src.frames, frame("00:00:05.000", model.Clear, tracking.Unreadable))
			res, err := session.Run(context.Background(), src,
				session.WithTrackerOptions(tracking.WithMergeUnreadable(false)))
			So(err, ShouldBeNil)
			So(res.Rows, ShouldHaveLength, 4)
		})
	})
}

func TestRunImage(t *testing.T) {
	Convey("Given an image source", t, func() {
		src := &fakeSource{
			kind:   model.KindImage,
			name:   "cars.jpg",
			frames: []model.Frame{frame("Image: cars.jpg", model.Rainy, "KA01AB1234", "MH12", "ka01ab1234")},
		}

		Convey("Then all plates collapse into one aggregated row", func() {
			res, err := session.Run(context.Background(), src)
			So(err, ShouldBeNil)
			So(res.Rows, ShouldResemble, []model.Row{
				{Timestamp: "Image: cars.jpg", Plates: "KA01AB1234, MH12", VehicleCount: 2, Condition: model.Rainy},
			})
		})

		Convey("Then an image without plates yields no rows", func() {
			src.frames = []model.Frame{frame("Image: cars.jpg", model.Clear)}
			res, err := session.Run(context.Background(), src)
			So(err, ShouldBeNil)
			So(res.Rows, ShouldBeEmpty)
			So(res.TotalVehicles(), ShouldEqual, 0)
		})
	})
}

func TestRunAborted(t *testing.T) {
	Convey("Given a source that fails midway", t, func() {
		boom := errors.New("decoder crashed")
		src := &fakeSource{
			kind:   model.KindVideo,
			frames: []model.Frame{frame("00:00:00.000", model.Clear, "ABC123")},
			err:    boom,
		}

		res, err := session.Run(context.Background(), src)

		Convey("Then the partial session is discarded", func() {
			So(errors.Is(err, session.ErrSource), ShouldBeTrue)
			So(errors.Is(err, boom), ShouldBeTrue)
			So(res.Rows, ShouldBeNil)
		})
	})

	Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		src := &fakeSource{kind: model.KindVideo, frames: []model.Frame{frame("t", model.Clear, "ABC123")}}

		_, err := session.Run(ctx, src)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}
