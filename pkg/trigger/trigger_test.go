package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOverThresholdDefaultCheckFiresAboveMarginAdjustedHigh(t *testing.T) {
	tr := New(Over, 100, 20, 0.1, true)
	assert.False(t, tr.DefaultCheck(85))
	assert.True(t, tr.DefaultCheck(95))
}

func TestUnderThresholdDefaultCheckComparesAgainstHighNotLow(t *testing.T) {
	tr := New(Under, 100, 20, 0.1, true)
	assert.False(t, tr.DefaultCheck(95))
	assert.True(t, tr.DefaultCheck(85))
}

func TestMarginIsClampedToValidRange(t *testing.T) {
	tr := New(Over, 100, 0, -1, true)
	assert.Equal(t, 0.0, tr.margin)
	tr2 := New(Over, 100, 0, 1.5, true)
	assert.Equal(t, 0.999, tr2.margin)
}

func TestEvaluateInvokesActionOnlyWhenArmedAndConditionHolds(t *testing.T) {
	fired := 0
	tr := New(Over, 100, 20, 0.1, false)
	tr.SetActionFunction(func() { fired++ })

	assert.False(t, tr.Evaluate(95))
	assert.Equal(t, 0, fired)

	tr.SetArmed(true)
	assert.True(t, tr.Evaluate(95))
	assert.Equal(t, 1, fired)

	assert.False(t, tr.Evaluate(50))
	assert.Equal(t, 1, fired)
}

func TestCustomCheckFunctionOverridesDefault(t *testing.T) {
	tr := New(Over, 100, 20, 0.1, true)
	tr.SetCheckFunction(func(curr float64) bool { return curr == 42 })
	assert.True(t, tr.Check(42))
	assert.False(t, tr.Check(95))
}

func TestFactoryDispensesByTagAndDefaultsToOverThreshold(t *testing.T) {
	f := NewFactory()

	over := f.Get(TagOverThreshold, 100, 20, 0.1, true)
	assert.Equal(t, Over, over.kind)

	under := f.Get(TagUnderThreshold, 100, 20, 0.1, true)
	assert.Equal(t, Under, under.kind)

	fallback := f.Get(Tag("unknown"), 100, 20, 0.1, true)
	assert.Equal(t, Over, fallback.kind)
}
