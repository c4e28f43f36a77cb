package sync

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/learningops/lmsync/internal/etl"
	"github.com/learningops/lmsync/internal/models"
)

// Transforms are total over optional fields: anything missing gets a
// documented default. Only a missing natural identifier is fatal.

// TransformUser maps a raw user-service record to its canonical form.
func TransformUser(raw models.Raw) (models.Canonical, error) {
	id := raw.String("userID")
	if id == "" {
		return nil, &etl.TransformError{Field: "userID", Msg: "missing required identifier"}
	}

	user := models.User{
		ID:           id,
		Name:         raw.String("fullName"),
		Email:        strings.ToLower(raw.String("email")),
		Department:   raw.String("department"),
		ManagerID:    raw.String("managerID"),
		Status:       raw.String("status"),
		LastModified: parseAPITime(raw.String("lastModified")),
	}
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}

	return user, nil
}

// TransformCompletion maps learning-history records and the tagged item
// details riding in the same batch.
func TransformCompletion(raw models.Raw) (models.Canonical, error) {
	if raw.String(recordTypeField) == recordTypeItemDetail {
		return TransformItem(raw)
	}

	userID := raw.String("userID")
	if userID == "" {
		return nil, &etl.TransformError{Field: "userID", Msg: "missing required identifier"}
	}
	itemID := raw.String("itemID")
	if itemID == "" {
		return nil, &etl.TransformError{Field: "itemID", Msg: "missing required identifier"}
	}

	completion := models.Completion{
		UserID:      userID,
		ItemID:      itemID,
		CompletedAt: parseAPITime(raw.String("completedDate")),
		Status:      raw.String("completionStatus"),
		Score:       raw.Float("score"),
		Hours:       raw.Float("totalHours"),
	}
	if completion.Status == "" {
		completion.Status = models.CompletionStatusComplete
	}

	return completion, nil
}

// TransformItem maps a catalog record to its canonical form.
func TransformItem(raw models.Raw) (models.Canonical, error) {
	id := raw.String("itemID")
	if id == "" {
		return nil, &etl.TransformError{Field: "itemID", Msg: "missing required identifier"}
	}

	item := models.LearningItem{
		ID:            id,
		Title:         raw.String("itemTitle"),
		Type:          raw.String("itemType"),
		DurationHours: raw.Float("durationHours"),
	}
	if item.Type == "" {
		item.Type = models.ItemTypeCourse
	}

	return item, nil
}

var epochMillisPattern = regexp.MustCompile(`^/Date\((-?\d+)\)/$`)

// parseAPITime handles both timestamp shapes the remote API emits: ISO8601
// and the legacy /Date(epochmillis)/ wrapper. Unparseable or absent values
// map to the zero time.
func parseAPITime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}

	if m := epochMillisPattern.FindStringSubmatch(value); m != nil {
		millis, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}
		}
		return time.UnixMilli(millis).UTC()
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}

	return time.Time{}
}
