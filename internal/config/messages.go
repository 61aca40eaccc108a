package config

import "fmt"

const (
	errRequiredEnvNotSetFmt     = "required environment variable %s is not set"
	errSecretMinLengthFmt       = "%s must be at least %d characters"
	errSecretLowEntropyFmt      = "%s has insufficient entropy (appears non-random). Use a cryptographically secure random string."
	errNonPositiveFmt           = "%s must be positive"
	errRefreshShorterThanAccess = "refresh token lifetime must not be shorter than access token lifetime"
)

type messageBuilders struct {
	required         func(string) string
	secretTooShort   func(string, int) string
	secretLowEntropy func(string) string
	nonPositive      func(string) string
}

func newMessageBuilders() messageBuilders {
	return messageBuilders{
		required: func(key string) string {
			return fmt.Sprintf(errRequiredEnvNotSetFmt, key)
		},
		secretTooShort: func(key string, n int) string {
			return fmt.Sprintf(errSecretMinLengthFmt, key, n)
		},
		secretLowEntropy: func(key string) string {
			return fmt.Sprintf(errSecretLowEntropyFmt, key)
		},
		nonPositive: func(what string) string {
			return fmt.Sprintf(errNonPositiveFmt, what)
		},
	}
}

var messages = newMessageBuilders()
