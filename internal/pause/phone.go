// Package pause manages per-conversation agent pause state: a write-through
// cache over the conversation context store, resume-command recognition and
// business-hours driven auto-resume.
package pause

import (
	"errors"
	"strings"
)

// NormalizePhone canonicalizes a phone number into the digits-only form used
// as the cache and store key. Numbers without a country code are assumed
// Brazilian and get the 55 prefix.
func NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits := b.String()
	if len(digits) < 10 {
		return "", errors.New("phone has too few digits")
	}

	// 10-11 digits is a bare DDD + local number.
	if len(digits) == 10 || len(digits) == 11 {
		digits = "55" + digits
	}
	if len(digits) > 13 {
		return "", errors.New("phone has too many digits")
	}
	return digits, nil
}
