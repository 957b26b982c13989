package risk

import (
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/adityash8/proofport/internal/domain"
)

// Signal weights and thresholds. These are the scoring contract and are
// deliberately not configurable.
const (
	weightDeviceMissing       = 0.30
	weightDeviceLowConfidence = 0.20
	weightDisposableEmail     = 0.40
	weightSuspiciousEmail     = 0.30
	weightHighAmount          = 0.20
	weightLowAmount           = 0.10
	weightTripPattern         = 0.30
	weightDenylistCountry     = 0.20
	weightDenylistNetwork     = 0.30

	highAmountLimit = 500.0
	lowAmountLimit  = 10.0
	maxFutureDays   = 365

	highThreshold   = 0.8
	mediumThreshold = 0.5

	minDeviceConfidence = 0.5

	// A local part with this many identical characters in a row fires the
	// suspicious-email signal. RE2 has no backreferences, so the run is
	// detected directly rather than with a pattern.
	repeatRunMin = 5
)

// DeviceSignal is the optional fingerprint reported by the device-signal
// provider. A nil signal is a valid input.
type DeviceSignal struct {
	VisitorID  string
	Confidence float64
}

// Input bundles the purchase attributes the evaluator scores. Optional
// fields left empty are treated as "signal absent", never as errors.
type Input struct {
	Device  *DeviceSignal
	Email   string
	Amount  float64
	Country string
	IP      string
	Trip    domain.TripDetails
}

// Evaluator scores prospective purchases against its policy tables.
// It performs no I/O and is safe for concurrent use.
type Evaluator struct {
	disposable map[string]struct{}
	suspicious []*regexp.Regexp
	countries  map[string]struct{}
	networks   []netip.Prefix
}

// NewEvaluator compiles the policy tables. Malformed patterns and CIDR
// entries are skipped so a bad table row degrades that row, not scoring.
func NewEvaluator(p Policy) *Evaluator {
	e := &Evaluator{
		disposable: make(map[string]struct{}, len(p.DisposableDomains)),
		countries:  make(map[string]struct{}, len(p.CountryDenylist)),
	}
	for _, d := range p.DisposableDomains {
		e.disposable[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	for _, pat := range p.SuspiciousLocal {
		re, err := regexp.Compile(pat)
		if err != nil {
			continue
		}
		e.suspicious = append(e.suspicious, re)
	}
	for _, c := range p.CountryDenylist {
		e.countries[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	for _, cidr := range p.NetworkDenylist {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		e.networks = append(e.networks, prefix)
	}
	return e
}

// Evaluate scores one purchase attempt. Contributions are additive and
// checked in a fixed order; the final score is clamped to 1.0.
func (e *Evaluator) Evaluate(in Input, now time.Time) domain.RiskAssessment {
	var score float64
	var reasons []string

	if in.Device == nil {
		score += weightDeviceMissing
		reasons = append(reasons, "no device fingerprint available")
	} else if in.Device.Confidence < minDeviceConfidence {
		score += weightDeviceLowConfidence
		reasons = append(reasons, "low device fingerprint confidence")
	}

	if e.isDisposableEmail(in.Email) {
		score += weightDisposableEmail
		reasons = append(reasons, "disposable email domain")
	}
	if e.isSuspiciousEmail(in.Email) {
		score += weightSuspiciousEmail
		reasons = append(reasons, "suspicious email pattern")
	}

	if in.Amount > highAmountLimit {
		score += weightHighAmount
		reasons = append(reasons, "high transaction amount")
	}
	if in.Amount < lowAmountLimit {
		score += weightLowAmount
		reasons = append(reasons, "unusually low amount")
	}

	if !in.Trip.TravelDate.IsZero() {
		if sameCalendarDay(in.Trip.TravelDate, now) {
			score += weightTripPattern
			reasons = append(reasons, "same-day travel")
		} else if in.Trip.TravelDate.Sub(now).Hours() > maxFutureDays*24 {
			score += weightTripPattern
			reasons = append(reasons, "travel date too far in the future")
		}
	}

	if in.Country != "" {
		if _, hit := e.countries[strings.ToUpper(in.Country)]; hit {
			score += weightDenylistCountry
			reasons = append(reasons, "denylisted country")
		}
	}

	if e.isDenylistedAddress(in.IP) {
		score += weightDenylistNetwork
		reasons = append(reasons, "denylisted network range")
	}

	if score > 1.0 {
		score = 1.0
	}

	level := domain.RiskLevelLow
	switch {
	case score >= highThreshold:
		level = domain.RiskLevelHigh
	case score >= mediumThreshold:
		level = domain.RiskLevelMedium
	}

	return domain.RiskAssessment{
		Score:   score,
		Level:   level,
		Reasons: reasons,
		Block:   level == domain.RiskLevelHigh,
	}
}

func (e *Evaluator) isDisposableEmail(email string) bool {
	_, dom, ok := strings.Cut(email, "@")
	if !ok {
		return false
	}
	_, hit := e.disposable[strings.ToLower(dom)]
	return hit
}

func (e *Evaluator) isSuspiciousEmail(email string) bool {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return false
	}
	for _, re := range e.suspicious {
		if re.MatchString(local) {
			return true
		}
	}
	return longestRun(local) >= repeatRunMin
}

func (e *Evaluator) isDenylistedAddress(ip string) bool {
	if ip == "" {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		// Malformed address counts as signal absent.
		return false
	}
	for _, prefix := range e.networks {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func longestRun(s string) int {
	longest, run := 0, 0
	var prev rune
	for i, r := range s {
		if i == 0 || r != prev {
			run = 1
		} else {
			run++
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return longest
}
