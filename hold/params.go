package hold

import (
	"fmt"
	"time"
)

const (
	// BaseHoldMargin is added to the cltv delta of every hold invoice, the
	// invoice may stay unsettled for a long time.
	BaseHoldMargin = 288

	// CltvHoldSafetyMargin is the minimum number of blocks an htlc must
	// stay unexpired beyond the cltv delta for us to keep holding it.
	CltvHoldSafetyMargin = 163

	DefaultCltvDelta    = 42
	DefaultPollInterval = 3 * time.Second
	MinPollInterval     = 100 * time.Millisecond

	DefaultExpiry = 86400 * time.Second
	MinExpiry     = 3600 * time.Second
	MaxExpiry     = 86400 * time.Second
)

type FailurePolicy string

const (
	// FailOpen accepts htlcs when the state can not be determined.
	FailOpen FailurePolicy = "fail-open"
	// FailClosed rejects htlcs when the state can not be determined.
	FailClosed FailurePolicy = "fail-closed"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case FailOpen, FailClosed:
		return FailurePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Params is the configuration a single call works with.
type Params struct {
	CltvDelta     uint32
	PollInterval  time.Duration
	FailurePolicy FailurePolicy
}

func DefaultParams() Params {
	return Params{
		CltvDelta:     DefaultCltvDelta,
		PollInterval:  DefaultPollInterval,
		FailurePolicy: FailOpen,
	}
}

// InvoiceCltv is the min_final_cltv_expiry requested for hold invoices.
func (p Params) InvoiceCltv() uint32 {
	return BaseHoldMargin + p.CltvDelta
}

func (p Params) Validate() error {
	if p.CltvDelta == 0 {
		return fmt.Errorf("cltv delta must be positive")
	}
	if p.PollInterval < MinPollInterval {
		return fmt.Errorf("poll interval %v is below %v", p.PollInterval, MinPollInterval)
	}
	_, err := ParseFailurePolicy(string(p.FailurePolicy))
	return err
}

// clampExpiry returns the default expiry for 0 and keeps others within
// [MinExpiry, MaxExpiry].
func clampExpiry(expiry time.Duration) time.Duration {
	switch {
	case expiry == 0:
		return DefaultExpiry
	case expiry < MinExpiry:
		return MinExpiry
	case expiry > MaxExpiry:
		return MaxExpiry
	default:
		return expiry
	}
}
