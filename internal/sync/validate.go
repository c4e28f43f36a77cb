package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/learningops/lmsync/internal/etl"
	"github.com/learningops/lmsync/internal/models"
)

// completionSkew tolerates clock drift between the LMS and this process when
// rejecting future-dated completions.
const completionSkew = 24 * time.Hour

// UserValidators returns the validation chain for user records, evaluated
// first-failure-wins.
func UserValidators() []etl.Validator {
	return []etl.Validator{
		{
			Name: "email_shape",
			Check: func(rec models.Canonical) (bool, string) {
				user, ok := rec.(models.User)
				if !ok {
					return false, fmt.Sprintf("unexpected record kind %q", rec.Kind())
				}
				// Email is optional; only a present-but-broken value fails.
				if user.Email != "" && !strings.Contains(user.Email, "@") {
					return false, fmt.Sprintf("malformed email %q", user.Email)
				}
				return true, ""
			},
		},
		{
			Name: "known_status",
			Check: func(rec models.Canonical) (bool, string) {
				user := rec.(models.User)
				switch user.Status {
				case models.UserStatusActive, "inactive":
					return true, ""
				}
				return false, fmt.Sprintf("unknown status %q", user.Status)
			},
		},
	}
}

// CompletionValidators returns the validation chain for the completions
// pipeline's mixed batch of completions and item details.
func CompletionValidators(now func() time.Time) []etl.Validator {
	return []etl.Validator{
		{
			Name: "completion_date",
			Check: func(rec models.Canonical) (bool, string) {
				completion, ok := rec.(models.Completion)
				if !ok {
					// Item details carry no completion date.
					return true, ""
				}
				if completion.CompletedAt.IsZero() {
					return false, "missing completion date"
				}
				if completion.CompletedAt.After(now().Add(completionSkew)) {
					return false, fmt.Sprintf("completion date %s is in the future", completion.CompletedAt.Format(time.RFC3339))
				}
				return true, ""
			},
		},
		{
			Name: "score_range",
			Check: func(rec models.Canonical) (bool, string) {
				completion, ok := rec.(models.Completion)
				if !ok {
					return true, ""
				}
				if completion.Score < 0 || completion.Score > 100 {
					return false, fmt.Sprintf("score %.2f out of range", completion.Score)
				}
				return true, ""
			},
		},
		{
			Name: "non_negative_hours",
			Check: func(rec models.Canonical) (bool, string) {
				switch r := rec.(type) {
				case models.Completion:
					if r.Hours < 0 {
						return false, fmt.Sprintf("negative hours %.2f", r.Hours)
					}
				case models.LearningItem:
					if r.DurationHours < 0 {
						return false, fmt.Sprintf("negative duration %.2f", r.DurationHours)
					}
				}
				return true, ""
			},
		},
	}
}

// ItemValidators returns the validation chain for the catalog pipeline.
func ItemValidators() []etl.Validator {
	return []etl.Validator{
		{
			Name: "non_negative_duration",
			Check: func(rec models.Canonical) (bool, string) {
				item, ok := rec.(models.LearningItem)
				if !ok {
					return false, fmt.Sprintf("unexpected record kind %q", rec.Kind())
				}
				if item.DurationHours < 0 {
					return false, fmt.Sprintf("negative duration %.2f", item.DurationHours)
				}
				return true, ""
			},
		},
	}
}
