// Package report turns a finished tracker session into vehicle log rows.
package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/tracking"
)

// Row is one line of the vehicle log.
type Row = model.Row

// Header is the column layout of the vehicle log.
var Header = []string{"Video Timestamp", "Plates Detected", "Vehicle Count", "Condition"}

// DownloadHeader is the column layout of a per-job CSV download.
var DownloadHeader = []string{"Timestamp", "License Plates", "Vehicle Count", "Condition"}

// ImagePrefix marks the timestamp column of image rows.
const ImagePrefix = "Image: "

// PlateSeparator joins plates in an aggregated image row.
const PlateSeparator = ", "

// VideoRows emits one row per vehicle. Every row carries the same condition.
func VideoRows(sightings []tracking.Sighting, condition model.Condition) []Row {
	rows := make([]Row, 0, len(sightings))
	for _, s := range sightings {
		rows = append(rows, Row{
			Timestamp:    s.FirstSeen,
			Plates:       s.Plate,
			VehicleCount: 1,
			Condition:    condition,
		})
	}
	return rows
}

// ImageRow aggregates every vehicle found on one image into a single row.
// It reports false when the image had no vehicles.
func ImageRow(name string, sightings []tracking.Sighting, condition model.Condition) (Row, bool) {
	if len(sightings) == 0 {
		return Row{}, false
	}
	return Row{
		Timestamp:    ImagePrefix + name,
		Plates:       strings.Join(SortedPlates(sightings), PlateSeparator),
		VehicleCount: len(sightings),
		Condition:    condition,
	}, true
}

// SortedPlates returns the plates of sightings in lexical order.
func SortedPlates(sightings []tracking.Sighting) []string {
	plates := make([]string, len(sightings))
	for i, s := range sightings {
		plates[i] = s.Plate
	}
	sort.Strings(plates)
	return plates
}

// TotalVehicles sums the vehicle count column.
func TotalVehicles(rows []Row) int {
	n := 0
	for _, r := range rows {
		n += r.VehicleCount
	}
	return n
}

// Record renders a row as CSV fields.
func Record(r Row) []string {
	return []string{r.Timestamp, r.Plates, strconv.Itoa(r.VehicleCount), string(r.Condition)}
}
