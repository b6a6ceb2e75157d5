// Package trigger implements the trigger (C10): a threshold-based
// condition primitive external monitors use to decide when the scheduling
// policy should re-run.
package trigger

import "sync"

// Kind selects which side of the threshold a trigger watches.
type Kind int

const (
	// Over fires when the observed value rises above the margin-adjusted
	// high threshold.
	Over Kind = iota
	// Under fires when the observed value falls below the margin-adjusted
	// high threshold.
	Under
)

func (k Kind) String() string {
	if k == Under {
		return "under_threshold"
	}
	return "over_threshold"
}

// Trigger is a threshold condition: a high and low bound, a margin that
// scales the high bound by (1-margin) before comparing (DefaultCheck does
// not use the low bound), an armed flag, and an optional custom
// check/action pair.
type Trigger struct {
	mu sync.Mutex

	kind   Kind
	high   uint32
	low    uint32
	margin float64
	armed  bool

	checkFunc  func(float64) bool
	actionFunc func()
}

// New returns a trigger of the given kind with the given thresholds,
// margin (clamped to [0,1)) and initial armed state.
func New(kind Kind, high, low uint32, margin float64, armed bool) *Trigger {
	if margin < 0 {
		margin = 0
	}
	if margin >= 1 {
		margin = 0.999
	}
	return &Trigger{kind: kind, high: high, low: low, margin: margin, armed: armed}
}

// Kind reports which side of the threshold this trigger watches.
func (t *Trigger) Kind() Kind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kind
}

// Bounds reports the trigger's configured high bound, low bound and
// margin.
func (t *Trigger) Bounds() (high, low uint32, margin float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.high, t.low, t.margin
}

// Armed reports whether the trigger is currently armed.
func (t *Trigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// SetArmed arms or disarms the trigger.
func (t *Trigger) SetArmed(armed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = armed
}

// SetCheckFunction overrides the default threshold comparison with a
// caller-supplied predicate.
func (t *Trigger) SetCheckFunction(f func(float64) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkFunc = f
}

// SetActionFunction registers the callback Evaluate invokes when the
// trigger fires.
func (t *Trigger) SetActionFunction(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actionFunc = f
}

// DefaultCheck is the built-in threshold comparison: Over fires when
// curr > high*(1-margin); Under fires when curr < high*(1-margin).
func (t *Trigger) DefaultCheck(curr float64) bool {
	t.mu.Lock()
	threshold := float64(t.high) * (1 - t.margin)
	kind := t.kind
	t.mu.Unlock()

	if kind == Under {
		return curr < threshold
	}
	return curr > threshold
}

// Check evaluates the trigger's condition against curr, using the custom
// check function if one was set, otherwise DefaultCheck.
func (t *Trigger) Check(curr float64) bool {
	t.mu.Lock()
	cf := t.checkFunc
	t.mu.Unlock()
	if cf != nil {
		return cf(curr)
	}
	return t.DefaultCheck(curr)
}

// Evaluate checks curr and, if the trigger is armed and the condition is
// verified, invokes the action function and reports true.
func (t *Trigger) Evaluate(curr float64) bool {
	if !t.Armed() || !t.Check(curr) {
		return false
	}
	t.mu.Lock()
	action := t.actionFunc
	t.mu.Unlock()
	if action != nil {
		action()
	}
	return true
}
