package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxrec/internal/rates"
)

func TestParseTargetsPresets(t *testing.T) {
	cases := []struct {
		input string
		want  []rates.Code
	}{
		{"", []rates.Code{"USD", "EUR", "GBP", "BWP", "MWK"}},
		{"default", []rates.Code{"USD", "EUR", "GBP", "BWP", "MWK"}},
		{"[DEFAULT]", []rates.Code{"USD", "EUR", "GBP", "BWP", "MWK"}},
		{" major ", []rates.Code{"USD", "EUR", "GBP", "CHF", "JPY", "CAD", "AUD", "NZD"}},
		{"AFRICAN", []rates.Code{"BWP", "MWK", "NAD", "SZL", "LSL", "NGN", "KES", "EGP"}},
		{"usd, eur,,zar", []rates.Code{"USD", "EUR"}},
		{"ZAR", []rates.Code{"USD", "EUR", "GBP", "BWP", "MWK"}},
	}
	for _, tc := range cases {
		spec, err := ParseTargets(tc.input, "ZAR")
		require.NoErrorf(t, err, "%q", tc.input)
		assert.Falsef(t, spec.All, "%q", tc.input)
		assert.Equalf(t, tc.want, spec.Codes, "%q", tc.input)
	}
}

func TestParseTargetsAll(t *testing.T) {
	for _, input := range []string{"ALL", "[all]"} {
		spec, err := ParseTargets(input, "USD")
		require.NoError(t, err)
		assert.True(t, spec.All)
		assert.Nil(t, spec.Strings())
	}
}

func TestParseTargetsRejectsBadCode(t *testing.T) {
	_, err := ParseTargets("USD,EURO", "ZAR")
	assert.ErrorIs(t, err, rates.ErrInvalidCode)
}

func TestParseTargetsDoesNotAliasPresets(t *testing.T) {
	spec, err := ParseTargets("MAJOR")
	require.NoError(t, err)
	spec.Codes[0] = "XXX"
	assert.Equal(t, rates.Code("USD"), MajorBasket[0])
}

func TestParseBases(t *testing.T) {
	got, err := ParseBases(" zar,usd , ZAR")
	require.NoError(t, err)
	assert.Equal(t, []rates.Code{"ZAR", "USD"}, got)

	_, err = ParseBases(" , ")
	assert.ErrorIs(t, err, ErrNoBases)
}
