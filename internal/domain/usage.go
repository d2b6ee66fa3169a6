package domain

type UsageCounters struct {
	MessagesUsed    int
	WebSearchesUsed int
}

type UsageLimits struct {
	MessageLimit   int
	WebSearchLimit int
}

// Account is the signed-in user as reported by the backend.
type Account struct {
	Name      string
	Email     string
	IsPremium bool
	IsAdmin   bool
	Usage     UsageCounters
}

// Unlimited reports whether plan limits are waived.
func (a Account) Unlimited() bool {
	return a.IsPremium || a.IsAdmin
}
