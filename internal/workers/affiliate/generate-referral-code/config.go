// internal/workers/affiliate/generate-referral-code/config.go
package generatereferralcode

const (
	DefaultMaxAttempts = 10
	DefaultPrefix      = "AFF"
	MaxPrefixLength    = 6
)

type Config struct {
	MaxAttempts int
}

func LoadConfig(maxAttempts int) *Config {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Config{MaxAttempts: maxAttempts}
}
