package validator

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	minEmailLength     = 3
	maxEmailLength     = 255
	minPasswordLength  = 8
	maxPasswordLength  = 128
	minSubdomainLength = 3
	maxSubdomainLength = 20
	maxDisplayNameLen  = 255
	asciiControlStart  = 32
	asciiDelete        = 127

	errEmailEmptyFmt           = "email cannot be empty"
	errEmailLengthFmt          = "email must be between %d and %d characters"
	errEmailInvalidFmt         = "invalid email format"
	errPasswordMinLengthFmt    = "password must be at least %d characters"
	errPasswordMaxLengthFmt    = "password must not exceed %d characters"
	errSubdomainLengthFmt      = "subdomain must be between %d and %d characters"
	errSubdomainCharsFmt       = "subdomain may only contain lowercase letters, digits and hyphens"
	errSubdomainHyphenFmt      = "subdomain cannot start or end with a hyphen"
	errDisplayNameEmptyFmt     = "name cannot be empty"
	errDisplayNameMaxLengthFmt = "name must not exceed %d characters"
	errDisplayNameControlFmt   = "name cannot contain control characters"
)

var (
	emailRegex     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	subdomainRegex = regexp.MustCompile(`^[a-z0-9-]+$`)
)

func Email(email string) error {
	if email == "" {
		return fmt.Errorf(errEmailEmptyFmt)
	}

	if len(email) < minEmailLength || len(email) > maxEmailLength {
		return fmt.Errorf(errEmailLengthFmt, minEmailLength, maxEmailLength)
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf(errEmailInvalidFmt)
	}

	return nil
}

func Password(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf(errPasswordMinLengthFmt, minPasswordLength)
	}

	if len(password) > maxPasswordLength {
		return fmt.Errorf(errPasswordMaxLengthFmt, maxPasswordLength)
	}

	return nil
}

// Subdomain checks the agency address rule: 3-20 chars of [a-z0-9-] with no
// leading or trailing hyphen. Callers normalize case beforehand.
func Subdomain(subdomain string) error {
	if len(subdomain) < minSubdomainLength || len(subdomain) > maxSubdomainLength {
		return fmt.Errorf(errSubdomainLengthFmt, minSubdomainLength, maxSubdomainLength)
	}

	if !subdomainRegex.MatchString(subdomain) {
		return fmt.Errorf(errSubdomainCharsFmt)
	}

	if strings.HasPrefix(subdomain, "-") || strings.HasSuffix(subdomain, "-") {
		return fmt.Errorf(errSubdomainHyphenFmt)
	}

	return nil
}

func DisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf(errDisplayNameEmptyFmt)
	}

	if len(name) > maxDisplayNameLen {
		return fmt.Errorf(errDisplayNameMaxLengthFmt, maxDisplayNameLen)
	}

	for _, char := range name {
		if char < asciiControlStart || char == asciiDelete {
			return fmt.Errorf(errDisplayNameControlFmt)
		}
	}

	return nil
}
