package webhook

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/and161185/visitguard/internal/errs"
)

// RedactURL masks userinfo passwords and query values for logging.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, "REDACTED")
		}
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}

// validateURL requires an absolute http(s) URL with a host.
func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: webhook URL is required", errs.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid webhook URL: %w", errs.ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: webhook URL must use http or https scheme, got %q", errs.ErrValidation, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: webhook URL must include a host", errs.ErrValidation)
	}
	return nil
}
