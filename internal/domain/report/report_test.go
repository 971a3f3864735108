package report_test

import (
	"testing"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/report"
	"github.com/okian/platecount/internal/domain/tracking"
	. "github.com/smartystreets/goconvey/convey"
)

func TestVideoRows(t *testing.T) {
	Convey("Given the vehicles of a video", t, func() {
		sightings := []tracking.Sighting{
			{Plate: "XYZ789", FirstSeen: "00:00:01.000"},
			{Plate: tracking.Unreadable, FirstSeen: "00:00:02.000"},
		}

		Convey("Then one row per vehicle shares the last condition", func() {
			rows := report.VideoRows(sightings, model.Rainy)
			So(rows, ShouldResemble, []model.Row{
				{Timestamp: "00:00:01.000", Plates: "XYZ789", VehicleCount: 1, Condition: model.Rainy},
				{Timestamp: "00:00:02.000", Plates: tracking.Unreadable, VehicleCount: 1, Condition: model.Rainy},
			})
			So(report.TotalVehicles(rows), ShouldEqual, 2)
		})

		Convey("Then no vehicles means no rows", func() {
			So(report.VideoRows(nil, model.Clear), ShouldBeEmpty)
		})
	})
}

func TestImageRow(t *testing.T) {
	Convey("Given the vehicles of an image", t, func() {
		Convey("When plates were found", func() {
			row, ok := report.ImageRow("cars.jpg", []tracking.Sighting{
				{Plate: "ZZZ999", FirstSeen: "Image: cars.jpg"},
				{Plate: "ABC123", FirstSeen: "Image: cars.jpg"},
			}, model.Lowlight)

			Convey("Then a single sorted aggregate row is produced", func() {
				So(ok, ShouldBeTrue)
				So(row, ShouldResemble, model.Row{
					Timestamp:    "Image: cars.jpg",
					Plates:       "ABC123, ZZZ999",
					VehicleCount: 2,
					Condition:    model.Lowlight,
				})
				So(report.Record(row), ShouldResemble, []string{"Image: cars.jpg", "ABC123, ZZZ999", "2", "Lowlight"})
			})
		})

		Convey("When nothing was found", func() {
			_, ok := report.ImageRow("empty.jpg", nil, model.Clear)
			So(ok, ShouldBeFalse)
		})
	})
}
