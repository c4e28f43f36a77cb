package api

import (
	"fmt"
)

// ValidationError represents a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// maxDaysBack bounds the cursor override; anything older is a full sync.
const maxDaysBack = 3650

// ValidateSyncRequest validates a sync trigger request.
func ValidateSyncRequest(req *SyncRequest) error {
	if req.Pipeline == "" {
		return ValidationError{Field: "pipeline", Message: "pipeline is required"}
	}

	if req.DaysBack < 0 {
		return ValidationError{Field: "days_back", Message: "days back cannot be negative"}
	}

	if req.DaysBack > maxDaysBack {
		return ValidationError{Field: "days_back", Message: fmt.Sprintf("days back cannot exceed %d", maxDaysBack)}
	}

	if req.DaysBack > 0 && !req.Incremental {
		return ValidationError{Field: "days_back", Message: "days back only applies to incremental syncs"}
	}

	return nil
}
