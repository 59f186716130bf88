package quote

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fxrec/internal/rates"
)

// envelope carries the error indicators Twelve Data puts in any payload.
type envelope struct {
	Code    int    `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type seriesValue struct {
	Datetime string `json:"datetime"`
	Close    string `json:"close"`
}

type seriesResponse struct {
	Values    []seriesValue `json:"values"`
	Rate      json.Number   `json:"rate"`
	Timestamp int64         `json:"timestamp"`
}

type pairsResponse struct {
	Data []struct {
		Symbol string `json:"symbol"`
	} `json:"data"`
}

// decodeSeries accepts either a time-series payload ("values") or a point payload
// ("rate"/"timestamp") and returns a validated series.
func decodeSeries(body []byte) (rates.Series, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseError("decode body: %v", err)
	}

	var resp seriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseError("decode series: %v", err)
	}

	if _, ok := raw["values"]; ok {
		obs := make([]rates.Observation, 0, len(resp.Values))
		for _, v := range resp.Values {
			o, err := decodeValue(v)
			if err != nil {
				return nil, err
			}
			obs = append(obs, o)
		}
		return newSeries(obs)
	}

	if _, ok := raw["rate"]; ok {
		o, err := decodePoint(resp)
		if err != nil {
			return nil, err
		}
		return newSeries([]rates.Observation{o})
	}

	return nil, parseError("payload has neither values nor rate")
}

func decodeValue(v seriesValue) (rates.Observation, error) {
	datePart := strings.TrimSpace(v.Datetime)
	if len(datePart) > len(rates.DateLayout) {
		datePart = datePart[:len(rates.DateLayout)]
	}
	date, err := rates.ParseDay(datePart)
	if err != nil {
		return rates.Observation{}, parseError("datetime %q: %v", v.Datetime, err)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(v.Close))
	if err != nil {
		return rates.Observation{}, parseError("close %q: %v", v.Close, err)
	}
	return rates.Observation{Date: date, Rate: rate}, nil
}

func decodePoint(resp seriesResponse) (rates.Observation, error) {
	rate, err := decimal.NewFromString(resp.Rate.String())
	if err != nil {
		return rates.Observation{}, parseError("rate %q: %v", resp.Rate.String(), err)
	}
	ts := time.Now()
	if resp.Timestamp > 0 {
		ts = time.Unix(resp.Timestamp, 0)
	}
	return rates.Observation{Date: rates.Day(ts.UTC()), Rate: rate}, nil
}

func newSeries(obs []rates.Observation) (rates.Series, error) {
	s, err := rates.NewSeries(obs)
	if err != nil {
		return nil, parseError("%v", err)
	}
	return s, nil
}

// decodeTargets collects the counter-currency of every listed symbol that involves base.
func decodeTargets(body []byte, base rates.Code) ([]rates.Code, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, parseError("decode body: %v", err)
	}
	if _, ok := raw["data"]; !ok {
		return nil, &Error{Reason: ReasonProvider, Msg: "forex_pairs payload has no data"}
	}

	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, parseError("decode forex pairs: %v", err)
	}

	set := make(map[rates.Code]struct{})
	for _, item := range resp.Data {
		left, right, ok := strings.Cut(item.Symbol, "/")
		if !ok {
			continue
		}
		l, r := rates.Normalize(left), rates.Normalize(right)
		switch base {
		case l:
			set[r] = struct{}{}
		case r:
			set[l] = struct{}{}
		}
	}

	out := make([]rates.Code, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func parseError(format string, args ...any) *Error {
	return &Error{Reason: ReasonParse, Msg: fmt.Sprintf(format, args...)}
}
