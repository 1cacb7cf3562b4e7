// Package usage fetches provider-side rate-limit data for a profile's access
// token and derives display metrics from the normalized snapshots.
package usage

// RateLimitWindow is one provider-reported quota period.
type RateLimitWindow struct {
	// UsedPercent is how much of the window's quota has been consumed (0-100).
	UsedPercent float64 `json:"usedPercent"`

	// WindowMinutes is the duration of the window in whole minutes.
	// Nil when the provider did not report a usable duration.
	WindowMinutes *int `json:"windowMinutes"`

	// ResetsAt is the epoch second at which the window fully resets.
	// Nil when the provider did not report it.
	ResetsAt *int64 `json:"resetsAt"`
}

// Valid reports whether the window carries all three fields required for
// aggregation.
func (w *RateLimitWindow) Valid() bool {
	return w != nil && w.WindowMinutes != nil && w.ResetsAt != nil
}

// CreditsSnapshot is the provider's credit status for an account.
type CreditsSnapshot struct {
	HasCredits bool    `json:"hasCredits"`
	Unlimited  bool    `json:"unlimited"`
	Balance    *string `json:"balance"`
}

// RateLimitSnapshot is the normalized usage state for one profile.
// It is recomputed on every request and never persisted.
type RateLimitSnapshot struct {
	PlanType *string `json:"planType"`

	// Primary is the short (5-hour) window, Secondary the weekly one.
	Primary   *RateLimitWindow `json:"primary"`
	Secondary *RateLimitWindow `json:"secondary"`

	Credits *CreditsSnapshot `json:"credits"`
}

// Weekly returns the snapshot's secondary window, or nil.
func (s *RateLimitSnapshot) Weekly() *RateLimitWindow {
	if s == nil {
		return nil
	}
	return s.Secondary
}
