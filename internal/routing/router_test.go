package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxrec/internal/rates"
)

func newRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(nil, "")
	require.NoError(t, err)
	return r
}

func TestRouteDirectOrdering(t *testing.T) {
	r := newRouter(t)
	cases := []struct {
		base, target rates.Code
		symbol       string
		invert       bool
	}{
		{"EUR", "USD", "EUR/USD", false},
		{"USD", "EUR", "EUR/USD", true},
		{"USD", "ZAR", "USD/ZAR", false},
		{"ZAR", "USD", "USD/ZAR", true},
		{"GBP", "CHF", "GBP/CHF", false},
		{"JPY", "NZD", "NZD/JPY", true},
	}
	for _, tc := range cases {
		d, err := r.Route(tc.base, tc.target)
		require.NoError(t, err)
		assert.Equal(t, Direct, d.Kind, "%s/%s", tc.base, tc.target)
		assert.Equal(t, tc.symbol, d.Symbol, "%s/%s", tc.base, tc.target)
		assert.Equal(t, tc.invert, d.Invert, "%s/%s", tc.base, tc.target)
	}
}

func TestRouteExoticPairsTriangulate(t *testing.T) {
	r := newRouter(t)
	d, err := r.Route("ZAR", "BWP")
	require.NoError(t, err)
	assert.Equal(t, Triangulated, d.Kind)
	assert.Equal(t, rates.Code("USD"), d.Anchor)
	assert.Equal(t, "USD/ZAR", d.AnchorBase)
	assert.Equal(t, "USD/BWP", d.AnchorTarget)
	assert.Equal(t, []string{"USD/ZAR", "USD/BWP"}, d.Symbols())
}

func TestRouteRejectsIdentity(t *testing.T) {
	_, err := newRouter(t).Route("USD", "USD")
	assert.ErrorIs(t, err, ErrIdentityPair)
}

func TestRouteIsDeterministicAndMutuallyInverse(t *testing.T) {
	r := newRouter(t)
	codes := []rates.Code{"EUR", "GBP", "AUD", "NZD", "USD", "CAD", "CHF", "ZAR", "BWP", "MWK", "JPY"}
	for _, a := range codes {
		for _, b := range codes {
			if a == b {
				continue
			}
			ab, err := r.Route(a, b)
			require.NoError(t, err)
			again, _ := r.Route(a, b)
			assert.Equal(t, ab, again)

			ba, err := r.Route(b, a)
			require.NoError(t, err)
			require.Equal(t, ab.Kind, ba.Kind)
			if ab.Kind == Direct {
				assert.Equal(t, ab.Symbol, ba.Symbol)
				assert.NotEqual(t, ab.Invert, ba.Invert)
			} else {
				assert.Equal(t, ab.AnchorBase, ba.AnchorTarget)
				assert.Equal(t, ab.AnchorTarget, ba.AnchorBase)
			}
		}
	}
}

func TestRouteDoesNotDependOnListOrderOfOthers(t *testing.T) {
	r1, err := NewRouter([]rates.Code{"EUR", "USD"}, "USD")
	require.NoError(t, err)
	d, err := r1.Route("USD", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "EUR/USD", d.Symbol)
	assert.True(t, d.Invert)
}

func TestNewRouterRejectsExoticAnchor(t *testing.T) {
	_, err := NewRouter(nil, "ZAR")
	assert.Error(t, err)
}

func TestPlanDeduplicatesSymbols(t *testing.T) {
	r := newRouter(t)
	decisions, symbols := r.Plan([]rates.Code{"USD", "ZAR"}, []rates.Code{"USD", "ZAR", "BWP"})

	// USD→ZAR, USD→BWP, ZAR→USD, ZAR→BWP; identity pairs dropped.
	assert.Len(t, decisions, 4)
	assert.Equal(t, []string{"USD/BWP", "USD/ZAR"}, symbols)
}
