package service

import (
	"errors"
	"strings"

	"fxrec/internal/rates"
)

// Named target baskets accepted in place of an explicit list.
var (
	DefaultBasket = []rates.Code{"USD", "EUR", "GBP", "BWP", "MWK", "ZAR"}
	MajorBasket   = []rates.Code{"USD", "EUR", "GBP", "CHF", "JPY", "CAD", "AUD", "NZD"}
	AfricanBasket = []rates.Code{"BWP", "MWK", "NAD", "SZL", "LSL", "ZAR", "NGN", "KES", "EGP"}
)

var presets = map[string][]rates.Code{
	"DEFAULT": DefaultBasket,
	"MAJOR":   MajorBasket,
	"AFRICAN": AfricanBasket,
}

const allKeyword = "ALL"

// ErrNoBases is returned when base input names no currency.
var ErrNoBases = errors.New("at least one base currency is required")

// TargetSpec is either the provider's full catalogue for each base or an explicit list.
type TargetSpec struct {
	All   bool
	Codes []rates.Code
}

// Strings renders the codes for cache keys; nil stands for the full catalogue.
func (t TargetSpec) Strings() []string {
	if t.All {
		return nil
	}
	out := make([]string, len(t.Codes))
	for i, c := range t.Codes {
		out[i] = string(c)
	}
	return out
}

// ParseTargets reads a preset keyword (DEFAULT, MAJOR, AFRICAN, ALL, optionally bracketed)
// or a comma list. Blank input, or a list left empty once the excluded codes are removed,
// selects DEFAULT.
func ParseTargets(input string, exclude ...rates.Code) (TargetSpec, error) {
	keyword := strings.ToUpper(strings.Trim(strings.TrimSpace(input), "[]"))
	if keyword == allKeyword {
		return TargetSpec{All: true}, nil
	}

	var codes []rates.Code
	if basket, ok := presets[keyword]; ok {
		codes = basket
	} else if keyword != "" {
		parsed, err := rates.ParseCodes(strings.Split(keyword, ","))
		if err != nil {
			return TargetSpec{}, err
		}
		codes = parsed
	}

	codes = without(codes, exclude)
	if len(codes) == 0 {
		codes = without(DefaultBasket, exclude)
	}
	return TargetSpec{Codes: codes}, nil
}

// ParseBases splits comma-separated base currencies.
func ParseBases(input string) ([]rates.Code, error) {
	codes, err := rates.ParseCodes(strings.Split(input, ","))
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, ErrNoBases
	}
	return codes, nil
}

func without(codes, exclude []rates.Code) []rates.Code {
	out := make([]rates.Code, 0, len(codes))
	for _, c := range codes {
		skip := false
		for _, e := range exclude {
			if c == e {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}
