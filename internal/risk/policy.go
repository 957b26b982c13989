package risk

import (
	"encoding/json"
	"fmt"
	"os"
)

// Policy holds the externally tunable signal tables. The scoring weights
// and thresholds are part of the evaluator contract and stay in code; the
// lists here are operational data that changes without a release.
type Policy struct {
	DisposableDomains []string `json:"disposable_domains"`
	SuspiciousLocal   []string `json:"suspicious_local_patterns"`
	CountryDenylist   []string `json:"country_denylist"`
	NetworkDenylist   []string `json:"network_denylist"`
}

// DefaultPolicy returns the built-in tables used when no policy file is
// configured.
func DefaultPolicy() Policy {
	return Policy{
		DisposableDomains: []string{
			"tempmail.org",
			"10minutemail.com",
			"guerrillamail.com",
			"mailinator.com",
			"throwaway.email",
		},
		SuspiciousLocal: []string{
			`\d{6,}`,     // long digit run
			`[a-z]{20,}`, // long letter run
		},
		CountryDenylist: []string{"XX", "YY"},
		NetworkDenylist: []string{
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
		},
	}
}

// LoadPolicyFile reads a JSON policy document from disk.
func LoadPolicyFile(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file: %w", err)
	}
	return p, nil
}
