package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// Fingerprint identifies a credential in cache keys without revealing it.
func Fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])[:16]
}

// RatesKey covers one extraction: credential, base set, target set and date range.
// An empty target list stands for the provider's full catalogue.
func RatesKey(credential string, bases, targets []string, start, end time.Time) string {
	t := "ALL"
	if len(targets) > 0 {
		t = joinSorted(targets)
	}
	return strings.Join([]string{
		"rates",
		Fingerprint(credential),
		joinSorted(bases),
		t,
		start.Format(dayLayout),
		end.Format(dayLayout),
	}, ":")
}

// CurrenciesKey covers the available-targets lookup for base.
func CurrenciesKey(credential, base string) string {
	return "currencies:" + Fingerprint(credential) + ":" + strings.ToUpper(base)
}

// AuditRateKey covers one reference rate for the audit path. Rates are facts about the
// market rather than the account, so the key does not embed the credential.
func AuditRateKey(date time.Time, base, source string) string {
	return "audit_rate:" + date.Format(dayLayout) + ":" + strings.ToUpper(strings.TrimSpace(base)) + ":" + strings.ToUpper(strings.TrimSpace(source))
}

func joinSorted(items []string) string {
	cp := make([]string, len(items))
	for i, s := range items {
		cp[i] = strings.ToUpper(s)
	}
	sort.Strings(cp)
	return strings.Join(cp, ",")
}
