package routing

import (
	"errors"
	"fmt"
	"sort"

	"fxrec/internal/rates"
)

// DefaultStandard is the liquidity priority list; earlier entries lead provider symbols.
var DefaultStandard = []rates.Code{"EUR", "GBP", "AUD", "NZD", "USD", "CAD", "CHF"}

// DefaultAnchor is the reference currency for exotic crosses.
const DefaultAnchor rates.Code = "USD"

// ErrIdentityPair is returned when base equals target.
var ErrIdentityPair = errors.New("routing: base and target are the same currency")

// Kind tags a Decision.
type Kind int

const (
	Direct Kind = iota
	Triangulated
)

func (k Kind) String() string {
	if k == Triangulated {
		return "triangulated"
	}
	return "direct"
}

// Decision says which provider symbols back a requested pair and how to combine them.
//
// For Direct, Symbol is fetched and reciprocated when Invert is set.
// For Triangulated, rate(base→target) = (1 / rate(AnchorBase)) * rate(AnchorTarget),
// where both legs are quoted as anchor/X.
type Decision struct {
	Kind         Kind
	Pair         rates.Pair
	Symbol       string
	Invert       bool
	Anchor       rates.Code
	AnchorBase   string
	AnchorTarget string
}

// Symbols lists every provider symbol the decision depends on.
func (d Decision) Symbols() []string {
	if d.Kind == Triangulated {
		return []string{d.AnchorBase, d.AnchorTarget}
	}
	return []string{d.Symbol}
}

// Router is a pure function of the standard list and the anchor.
type Router struct {
	priority map[rates.Code]int
	anchor   rates.Code
}

// NewRouter builds a router. The anchor must be one of the standard currencies.
func NewRouter(standard []rates.Code, anchor rates.Code) (*Router, error) {
	if len(standard) == 0 {
		standard = DefaultStandard
	}
	if anchor == "" {
		anchor = DefaultAnchor
	}
	priority := make(map[rates.Code]int, len(standard))
	for i, c := range standard {
		if _, dup := priority[c]; !dup {
			priority[c] = i
		}
	}
	if _, ok := priority[anchor]; !ok {
		return nil, fmt.Errorf("routing: anchor %s is not a standard currency", anchor)
	}
	return &Router{priority: priority, anchor: anchor}, nil
}

// Anchor returns the triangulation reference currency.
func (r *Router) Anchor() rates.Code { return r.anchor }

// IsStandard reports whether c is on the priority list.
func (r *Router) IsStandard(c rates.Code) bool {
	_, ok := r.priority[c]
	return ok
}

// Route decides how to obtain base→target.
func (r *Router) Route(base, target rates.Code) (Decision, error) {
	if base == target {
		return Decision{}, fmt.Errorf("%w: %s", ErrIdentityPair, base)
	}
	pair := rates.Pair{Base: base, Target: target}

	if !r.IsStandard(base) && !r.IsStandard(target) {
		return Decision{
			Kind:         Triangulated,
			Pair:         pair,
			Anchor:       r.anchor,
			AnchorBase:   rates.Pair{Base: r.anchor, Target: base}.Symbol(),
			AnchorTarget: rates.Pair{Base: r.anchor, Target: target}.Symbol(),
		}, nil
	}

	first, second := r.canonical(base, target)
	return Decision{
		Kind:   Direct,
		Pair:   pair,
		Symbol: rates.Pair{Base: first, Target: second}.Symbol(),
		Invert: first != base,
	}, nil
}

// canonical orders two currencies by priority, then alphabetically.
func (r *Router) canonical(a, b rates.Code) (rates.Code, rates.Code) {
	pa, pb := r.rank(a), r.rank(b)
	if pa < pb || (pa == pb && a < b) {
		return a, b
	}
	return b, a
}

func (r *Router) rank(c rates.Code) int {
	if p, ok := r.priority[c]; ok {
		return p
	}
	return len(r.priority)
}

// Plan routes every base against every target, skipping identity pairs, and returns the
// decisions with the deduplicated set of symbols to fetch.
func (r *Router) Plan(bases, targets []rates.Code) ([]Decision, []string) {
	decisions := make([]Decision, 0, len(bases)*len(targets))
	seen := make(map[string]struct{})
	symbols := make([]string, 0)

	for _, b := range bases {
		for _, t := range targets {
			d, err := r.Route(b, t)
			if err != nil {
				continue
			}
			decisions = append(decisions, d)
			for _, s := range d.Symbols() {
				if _, ok := seen[s]; ok {
					continue
				}
				seen[s] = struct{}{}
				symbols = append(symbols, s)
			}
		}
	}
	sort.Strings(symbols)
	return decisions, symbols
}
