package crypto

import (
	"strings"
	"unicode/utf8"
)

// MaskEmail hides the local part of an address, keeping its first and last character
// when it is longer than two characters. Input without "@" yields "***".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "***"
	}
	n := utf8.RuneCountInString(local)
	if n <= 2 {
		return strings.Repeat("*", n) + "@" + domain
	}
	r := []rune(local)
	return string(r[0]) + strings.Repeat("*", n-2) + string(r[n-1]) + "@" + domain
}

// MaskPhone keeps the last four digits and replaces the preceding digits with asterisks.
// Non-digits are dropped. Empty input yields "***".
func MaskPhone(phone string) string {
	if phone == "" {
		return "***"
	}
	d := digitsOnly(phone)
	if len(d) < 4 {
		return strings.Repeat("*", len(d))
	}
	return strings.Repeat("*", len(d)-4) + d[len(d)-4:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		}
	}
	return b.String()
}
