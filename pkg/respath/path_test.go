package respath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndString(t *testing.T) {
	p := New()
	require.NoError(t, p.Append(System, 0))
	require.NoError(t, p.Append(CPU, 1))
	require.NoError(t, p.Append(ProcElement, 3))

	assert.Equal(t, "sys0.cpu1.pe3", p.String())
	assert.True(t, p.IsExact())
	assert.False(t, p.IsTemplate())
}

func TestAppendUsedType(t *testing.T) {
	p := New()
	require.NoError(t, p.Append(CPU, 0))
	err := p.Append(CPU, 1)
	assert.ErrorIs(t, err, ErrUsedType)
}

func TestAppendUnknownType(t *testing.T) {
	p := New()
	err := p.Append(Type(999), 0)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestAppendStringSmartSkipsBadSegments(t *testing.T) {
	p, err := ParseString("sys0.bogus5.cpu1", true)
	require.NoError(t, err)
	assert.Equal(t, "sys0.cpu1", p.String())
}

func TestAppendStringStrictFailsOnBadSegment(t *testing.T) {
	_, err := ParseString("sys0.bogus5", false)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestReplaceID(t *testing.T) {
	p, err := ParseString("sys0.cpu0.pe3", false)
	require.NoError(t, err)

	require.NoError(t, p.ReplaceID(CPU, IDAny, 1))
	assert.Equal(t, "sys0.cpu1.pe3", p.String())

	err = p.ReplaceID(CPU, 0, 2)
	assert.ErrorIs(t, err, ErrMissID)

	err = p.ReplaceID(GPU, IDAny, 0)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestCompare(t *testing.T) {
	a, _ := ParseString("sys0.cpu0.pe3", false)
	b, _ := ParseString("sys0.cpu0.pe3", false)
	c, _ := ParseString("sys0.cpu1.pe3", false)
	d, _ := ParseString("sys0.cpu0", false)

	assert.Equal(t, Equal, a.Compare(b))
	assert.Equal(t, EqualTypes, a.Compare(c))
	assert.Equal(t, NotEqual, a.Compare(d))
}

func TestIsTemplate(t *testing.T) {
	tmpl, _ := ParseString("sys.cpu.pe", false)
	assert.True(t, tmpl.IsTemplate())

	mixed, _ := ParseString("sys0.cpu.pe", false)
	assert.False(t, mixed.IsTemplate())
	assert.False(t, mixed.IsExact())
}

func TestParentType(t *testing.T) {
	p, _ := ParseString("sys0.cpu1.pe3", false)
	assert.Equal(t, CPU, p.ParentType(ProcElement))
	assert.Equal(t, System, p.ParentType(CPU))
	assert.Equal(t, Undefined, p.ParentType(System))
	assert.Equal(t, Undefined, p.ParentType(GPU))
}

func TestLess(t *testing.T) {
	a, _ := ParseString("sys0.cpu0", false)
	b, _ := ParseString("sys0.cpu1", false)
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestClone(t *testing.T) {
	a, _ := ParseString("sys0.cpu0", false)
	b := a.Clone()
	require.NoError(t, b.ReplaceID(CPU, IDAny, 5))
	assert.Equal(t, "sys0.cpu0", a.String())
	assert.Equal(t, "sys0.cpu5", b.String())
}
