// internal/workers/affiliate/generate-referral-code/models.go
package generatereferralcode

import "context"

// Claimer performs the conditional insert for a candidate code. It reports
// false, with no error, when the code is already taken.
type Claimer interface {
	TryClaim(ctx context.Context, code string) (bool, error)
}

// ClaimFunc adapts a function to Claimer.
type ClaimFunc func(ctx context.Context, code string) (bool, error)

func (f ClaimFunc) TryClaim(ctx context.Context, code string) (bool, error) {
	return f(ctx, code)
}

type Input struct {
	Name string `json:"name"`
}

type Output struct {
	Code     string `json:"affiliateCode"`
	Attempts int    `json:"attempts"`
}
