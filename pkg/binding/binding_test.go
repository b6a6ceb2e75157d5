package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/restree"
)

func path(t *testing.T, s string) *respath.Path {
	t.Helper()
	p, err := respath.ParseString(s, false)
	require.NoError(t, err)
	return p
}

func fixtureTree(t *testing.T) *restree.Tree {
	t.Helper()
	tree := restree.New()
	for _, p := range []string{"sys0.cpu0.pe0", "sys0.cpu1.pe0", "sys0.cpu3.pe0"} {
		tree.Insert(path(t, p)).SetTotal(100)
	}
	return tree
}

func TestInitResolvesLegalIdsSortedAscending(t *testing.T) {
	tree := fixtureTree(t)
	m := New()
	m.Configure(respath.CPU, path(t, "sys.cpu"))

	require.NoError(t, m.Init(tree))
	assert.Equal(t, []int64{0, 1, 3}, m.IDs(respath.CPU))
}

func TestDomainReportsFalseWhenNeverConfigured(t *testing.T) {
	m := New()
	_, ok := m.Domain(respath.GPU)
	assert.False(t, ok)
}

func TestInitFailsWhenTemplateMatchesNothing(t *testing.T) {
	tree := fixtureTree(t)
	m := New()
	m.Configure(respath.GPU, path(t, "sys.gpu"))

	assert.Error(t, m.Init(tree))
}
