package models

import (
	"fmt"
	"time"
)

// User represents a learner record from the LMS user service.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Department   string    `json:"department,omitempty"`
	ManagerID    string    `json:"manager_id,omitempty"`
	Status       string    `json:"status"`
	LastModified time.Time `json:"last_modified"`
}

// UserStatusActive is the default status when the remote record omits one.
const UserStatusActive = "active"

// Key returns the user's natural identifier.
func (u User) Key() string { return u.ID }

// Kind identifies the record type.
func (u User) Kind() string { return "user" }

// Completion represents one completed learning activity for a user.
type Completion struct {
	UserID      string    `json:"user_id"`
	ItemID      string    `json:"item_id"`
	CompletedAt time.Time `json:"completed_at"`
	Status      string    `json:"status"`
	Score       float64   `json:"score"`
	Hours       float64   `json:"hours"`
}

// CompletionStatusComplete is the default status when the remote record omits one.
const CompletionStatusComplete = "complete"

// Key returns the completion's natural identifier: one logical completion per
// user, item and completion instant.
func (c Completion) Key() string {
	return fmt.Sprintf("%s|%s|%d", c.UserID, c.ItemID, c.CompletedAt.Unix())
}

// Kind identifies the record type.
func (c Completion) Kind() string { return "completion" }

// LearningItem represents a catalog entry referenced by completions.
type LearningItem struct {
	ID            string  `json:"id"`
	Title         string  `json:"title,omitempty"`
	Type          string  `json:"type"`
	DurationHours float64 `json:"duration_hours"`
}

// ItemTypeCourse is the default item type when the remote record omits one.
const ItemTypeCourse = "course"

// Key returns the item's natural identifier.
func (i LearningItem) Key() string { return i.ID }

// Kind identifies the record type.
func (i LearningItem) Kind() string { return "item" }
