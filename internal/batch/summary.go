package batch

import (
	"fmt"
	"io"
	"time"
)

// FileResult is the outcome of one processed file.
type FileResult struct {
	Name     string
	Output   string   // Annotated artifact, if any
	Plates   []string // Best plate of each vehicle in first-seen order
	Vehicles int
	Err      error
}

// Summary aggregates a batch run.
type Summary struct {
	Files   []FileResult
	LogPath string

	plates map[string]int
	order  []string

	StartTime time.Time
	Duration  time.Duration
}

func newSummary() *Summary {
	return &Summary{plates: map[string]int{}, StartTime: time.Now()}
}

func (s *Summary) add(r FileResult) {
	s.Files = append(s.Files, r)
	for _, p := range r.Plates {
		if _, ok := s.plates[p]; !ok {
			s.order = append(s.order, p)
		}
		s.plates[p]++
	}
}

func (s *Summary) finish() {
	s.Duration = time.Since(s.StartTime)
}

// UniquePlates counts distinct plates across all files, UNREADABLE included.
func (s *Summary) UniquePlates() int {
	return len(s.order)
}

// Frequency is the number of files in which plate was a vehicle.
func (s *Summary) Frequency(plate string) int {
	return s.plates[plate]
}

// Failed counts files that could not be processed.
func (s *Summary) Failed() int {
	n := 0
	for _, f := range s.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Print writes the per-file lines and the final report.
func (s *Summary) Print(w io.Writer) {
	for _, f := range s.Files {
		switch {
		case f.Err != nil:
			fmt.Fprintf(w, "[FAILED] %s: %v\n", f.Name, f.Err)
		case f.Output != "":
			fmt.Fprintf(w, "[DONE] Saved: %s - Found %d unique vehicles\n", f.Output, f.Vehicles)
		default:
			fmt.Fprintf(w, "[DONE] %s - Found %d unique vehicles\n", f.Name, f.Vehicles)
		}
	}

	fmt.Fprintln(w, "\n[SUMMARY]")
	fmt.Fprintln(w, "Total Unique Vehicles Detected (including UNREADABLE):", s.UniquePlates())
	fmt.Fprintln(w, "License Plate Frequencies:")
	for _, p := range s.order {
		fmt.Fprintf(w, "%s: %d times\n", p, s.plates[p])
	}
	if s.LogPath != "" {
		fmt.Fprintln(w, "\n[COMPLETE] All data logged to:", s.LogPath)
	}
}
