package sync

import (
	"testing"
	"time"

	"github.com/learningops/lmsync/internal/etl"
	"github.com/learningops/lmsync/internal/models"
)

// runValidators applies a chain first-failure-wins and returns the outcome.
func runValidators(validators []etl.Validator, rec models.Canonical) (bool, string) {
	for _, v := range validators {
		if ok, reason := v.Check(rec); !ok {
			return false, v.Name + ": " + reason
		}
	}
	return true, ""
}

func TestUserValidators(t *testing.T) {
	tests := map[string]struct {
		user models.User
		ok   bool
	}{
		"valid active":          {user: models.User{ID: "u1", Email: "a@b.com", Status: "active"}, ok: true},
		"valid inactive":        {user: models.User{ID: "u1", Status: "inactive"}, ok: true},
		"empty email allowed":   {user: models.User{ID: "u1", Status: "active"}, ok: true},
		"malformed email":       {user: models.User{ID: "u1", Email: "not-an-address", Status: "active"}, ok: false},
		"unknown status":        {user: models.User{ID: "u1", Status: "terminated"}, ok: false},
	}

	validators := UserValidators()
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ok, reason := runValidators(validators, tc.user)
			if ok != tc.ok {
				t.Errorf("expected ok=%v, got ok=%v (%s)", tc.ok, ok, reason)
			}
		})
	}
}

func TestCompletionValidators(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	completed := now.AddDate(0, 0, -3)

	tests := map[string]struct {
		rec models.Canonical
		ok  bool
	}{
		"valid": {
			rec: models.Completion{UserID: "u1", ItemID: "c1", CompletedAt: completed, Score: 80, Hours: 2},
			ok:  true,
		},
		"missing date": {
			rec: models.Completion{UserID: "u1", ItemID: "c1"},
			ok:  false,
		},
		"within clock skew": {
			rec: models.Completion{UserID: "u1", ItemID: "c1", CompletedAt: now.Add(12 * time.Hour)},
			ok:  true,
		},
		"future dated": {
			rec: models.Completion{UserID: "u1", ItemID: "c1", CompletedAt: now.Add(48 * time.Hour)},
			ok:  false,
		},
		"score too high": {
			rec: models.Completion{UserID: "u1", ItemID: "c1", CompletedAt: completed, Score: 101},
			ok:  false,
		},
		"negative score": {
			rec: models.Completion{UserID: "u1", ItemID: "c1", CompletedAt: completed, Score: -1},
			ok:  false,
		},
		"negative hours": {
			rec: models.Completion{UserID: "u1", ItemID: "c1", CompletedAt: completed, Hours: -0.5},
			ok:  false,
		},
		"item detail passes through": {
			rec: models.LearningItem{ID: "c1", DurationHours: 2},
			ok:  true,
		},
		"item detail negative duration": {
			rec: models.LearningItem{ID: "c1", DurationHours: -2},
			ok:  false,
		},
	}

	validators := CompletionValidators(func() time.Time { return now })
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ok, reason := runValidators(validators, tc.rec)
			if ok != tc.ok {
				t.Errorf("expected ok=%v, got ok=%v (%s)", tc.ok, ok, reason)
			}
		})
	}
}

func TestItemValidators(t *testing.T) {
	validators := ItemValidators()

	if ok, _ := runValidators(validators, models.LearningItem{ID: "c1", DurationHours: 3}); !ok {
		t.Error("expected valid item to pass")
	}
	if ok, _ := runValidators(validators, models.LearningItem{ID: "c1", DurationHours: -3}); ok {
		t.Error("expected negative duration to fail")
	}
	if ok, _ := runValidators(validators, models.User{ID: "u1"}); ok {
		t.Error("expected foreign record kind to fail")
	}
}
