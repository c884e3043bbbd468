package equipment

import "fmt"

// Reuse limits before a consumable must be replaced
const (
	MaxDialyserReuse = 7
	MaxTubingReuse   = 12
)

// Item names a tracked consumable
type Item string

const (
	Dialyser Item = "dialyser"
	Tubing   Item = "tubing"
)

// Status is the alert band of a reuse counter
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusExpired  Status = "expired"
)

// Counter is one consumable's reuse count and replacement tally
type Counter struct {
	Count     int `json:"count"`
	Max       int `json:"max"`
	Purchased int `json:"purchased"`
}

// Advance records one more use. A counter already at its limit is replaced:
// the count restarts at 1 and one purchase is added.
func (c Counter) Advance() (Counter, int) {
	if c.Count >= c.Max {
		c.Count = 1
		c.Purchased++
		return c, 1
	}
	c.Count++
	return c, 0
}

// Counters is a patient's pair of reuse counters
type Counters struct {
	Dialyser Counter `json:"dialyser"`
	Tubing   Counter `json:"tubing"`
}

// NewCounters returns counters with the standard limits
func NewCounters(dialyser, tubing, dialysersPurchased, tubingPurchased int) Counters {
	return Counters{
		Dialyser: Counter{Count: dialyser, Max: MaxDialyserReuse, Purchased: dialysersPurchased},
		Tubing:   Counter{Count: tubing, Max: MaxTubingReuse, Purchased: tubingPurchased},
	}
}

// Advance is the result of advancing both counters on a discharge
type Advance struct {
	DialyserCount           int `json:"dialyser_count"`
	TubingCount             int `json:"tubing_count"`
	DialysersPurchasedDelta int `json:"dialysers_purchased_delta"`
	TubingPurchasedDelta    int `json:"tubing_purchased_delta"`
}

// AdvanceOnDischarge applies one treatment's worth of use to both counters
func AdvanceOnDischarge(c Counters) (Counters, Advance) {
	var a Advance
	c.Dialyser, a.DialysersPurchasedDelta = c.Dialyser.Advance()
	c.Tubing, a.TubingPurchasedDelta = c.Tubing.Advance()
	a.DialyserCount = c.Dialyser.Count
	a.TubingCount = c.Tubing.Count
	return c, a
}

// UsageStatus is the alert classification of a counter
type UsageStatus struct {
	Status        Status `json:"status"`
	RemainingUses int    `json:"remaining_uses"`
	Message       string `json:"message"`
}

// Alerting reports whether the status should raise an alert
func (u UsageStatus) Alerting() bool {
	return u.Status != StatusOK
}

// ClassifyUsage bands a count against its limit: expired at the limit,
// critical one use before it, warning one use before critical
func ClassifyUsage(current, max int) UsageStatus {
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	switch {
	case current >= max:
		return UsageStatus{Status: StatusExpired, RemainingUses: 0, Message: "Reuse limit reached, replacement required"}
	case current == max-1:
		return UsageStatus{Status: StatusCritical, RemainingUses: remaining, Message: "1 use remaining, prepare replacement"}
	case current == max-2:
		return UsageStatus{Status: StatusWarning, RemainingUses: remaining, Message: fmt.Sprintf("%d uses remaining", remaining)}
	default:
		return UsageStatus{Status: StatusOK, RemainingUses: remaining, Message: fmt.Sprintf("%d uses remaining", remaining)}
	}
}

// Status classifies both counters
func (c Counters) Status() map[Item]UsageStatus {
	return map[Item]UsageStatus{
		Dialyser: ClassifyUsage(c.Dialyser.Count, c.Dialyser.Max),
		Tubing:   ClassifyUsage(c.Tubing.Count, c.Tubing.Max),
	}
}
