// Package limiter caps outbound notifications per subject, event and visit.
package limiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/model"
)

// Window lengths. Both are fixed windows anchored at first use.
const (
	HourWindow = time.Hour
	DayWindow  = 24 * time.Hour
)

// Limiter decides whether a notification may be sent.
type Limiter interface {
	// CheckLimit counts one send and reports whether it is admitted.
	// An empty visitID skips the per-visit cap.
	CheckLimit(ctx context.Context, subjectKey, eventType, visitID string) (bool, error)
	// Reset clears all counters.
	Reset(ctx context.Context) error
	// CurrentLimits returns a snapshot keyed by WindowKey/VisitKey.
	CurrentLimits(ctx context.Context) (map[string]model.LimitState, error)
}

// Limits are the configured caps.
type Limits struct {
	MaxPerHour  int `mapstructure:"max_per_hour"`
	MaxPerDay   int `mapstructure:"max_per_day"`
	MaxPerVisit int `mapstructure:"max_per_visit"`
}

// DefaultLimits returns 10/hour, 50/day, 3/visit.
func DefaultLimits() Limits {
	return Limits{MaxPerHour: 10, MaxPerDay: 50, MaxPerVisit: 3}
}

// Validate rejects non-positive caps.
func (l Limits) Validate() error {
	if l.MaxPerHour <= 0 || l.MaxPerDay <= 0 || l.MaxPerVisit <= 0 {
		return fmt.Errorf("%w: limits must be positive: %+v", errs.ErrValidation, l)
	}
	return nil
}

const keySep = "|"

// ValidateKey rejects key parts containing the key separator, which would let
// two different subjects share a counter.
func ValidateKey(subjectKey, eventType, visitID string) error {
	for _, part := range []string{subjectKey, eventType, visitID} {
		if strings.Contains(part, keySep) {
			return fmt.Errorf("%w: rate limit key part %q must not contain %q", errs.ErrValidation, part, keySep)
		}
	}
	return nil
}

// WindowKey identifies the hourly/daily counters of a subject and event.
func WindowKey(subjectKey, eventType string) string {
	return subjectKey + keySep + eventType
}

// VisitKey identifies the per-visit counter.
func VisitKey(subjectKey, eventType, visitID string) string {
	return strings.Join([]string{subjectKey, eventType, visitID}, keySep)
}
