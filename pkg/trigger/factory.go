package trigger

// Tag identifies a pre-configured trigger kind dispensed by Factory.
type Tag string

const (
	// TagOverThreshold dispenses a Trigger armed with the Over kind.
	TagOverThreshold Tag = "over_threshold"
	// TagUnderThreshold dispenses a Trigger armed with the Under kind.
	TagUnderThreshold Tag = "under_threshold"
)

// Factory dispenses pre-configured Trigger instances by tag. An unknown
// tag falls back to TagOverThreshold.
type Factory struct{}

// NewFactory returns a ready-to-use Factory.
func NewFactory() Factory { return Factory{} }

// Get returns a new trigger of the kind named by tag, with the given
// thresholds, margin and initial armed state.
func (Factory) Get(tag Tag, high, low uint32, margin float64, armed bool) *Trigger {
	kind := Over
	if tag == TagUnderThreshold {
		kind = Under
	}
	return New(kind, high, low, margin, armed)
}
