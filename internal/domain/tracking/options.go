package tracking

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold sets the similarity threshold. Values outside (0, 1] are
// ignored.
func WithThreshold(threshold float64) Option {
	return func(t *Tracker) {
		if threshold > 0 && threshold <= 1 {
			t.matcher.Threshold = threshold
		}
	}
}

// WithMergeUnreadable controls whether unreadable sightings collapse into a
// single vehicle.
func WithMergeUnreadable(merge bool) Option {
	return func(t *Tracker) {
		t.matcher.MergeUnreadable = merge
	}
}

// WithMatcher replaces the whole matching policy.
func WithMatcher(m Matcher) Option {
	return func(t *Tracker) {
		t.matcher = m
	}
}
