package tracking

// Vehicle is one deduplicated identity.
type Vehicle struct {
	BestPlate string
	Readings  []string
	FirstSeen string
}

// Sighting is the reportable projection of a Vehicle.
type Sighting struct {
	Plate     string `json:"plate"`
	FirstSeen string `json:"first_seen"`
}

// Tracker accumulates plate readings for a single source.
// It is not safe for concurrent use; callers must serialize AddDetection in
// arrival order.
type Tracker struct {
	matcher  Matcher
	vehicles []*Vehicle
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{matcher: DefaultMatcher()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddDetection folds one reading into the tracker and reports whether it
// created a new vehicle.
//
// Existing vehicles are scanned in creation order and the first one whose
// best plate or any earlier reading is similar receives the reading, even if
// a later vehicle would match more closely.
func (t *Tracker) AddDetection(plate, timestamp string) bool {
	for _, v := range t.vehicles {
		if !t.matches(v, plate) {
			continue
		}
		v.Readings = append(v.Readings, plate)
		v.BestPlate = SelectBest(v.Readings)
		return false
	}

	t.vehicles = append(t.vehicles, &Vehicle{
		BestPlate: plate,
		Readings:  []string{plate},
		FirstSeen: timestamp,
	})
	return true
}

func (t *Tracker) matches(v *Vehicle, plate string) bool {
	if t.matcher.Similar(plate, v.BestPlate) {
		return true
	}
	for _, r := range v.Readings {
		if t.matcher.Similar(plate, r) {
			return true
		}
	}
	return false
}

// UniqueVehicles returns one sighting per vehicle in creation order.
func (t *Tracker) UniqueVehicles() []Sighting {
	out := make([]Sighting, len(t.vehicles))
	for i, v := range t.vehicles {
		out[i] = Sighting{Plate: v.BestPlate, FirstSeen: v.FirstSeen}
	}
	return out
}

// Vehicles returns a copy of every record including all merged readings.
func (t *Tracker) Vehicles() []Vehicle {
	out := make([]Vehicle, len(t.vehicles))
	for i, v := range t.vehicles {
		out[i] = Vehicle{
			BestPlate: v.BestPlate,
			Readings:  append([]string(nil), v.Readings...),
			FirstSeen: v.FirstSeen,
		}
	}
	return out
}

// Len returns the number of vehicles seen so far.
func (t *Tracker) Len() int {
	return len(t.vehicles)
}
