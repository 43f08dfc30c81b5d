package domain

import "time"

// NotificationType identifies the rule that raised a notification.
type NotificationType string

const (
	NotifyAssignedToReviewer NotificationType = "assigned_to_" + Reviewer
	NotifyBlockedByReviewer  NotificationType = "blocked_by_" + Reviewer
	NotifyWorkerCompleted    NotificationType = Worker + "_completed"
	NotifyMovedToReview      NotificationType = "moved_to_review"
	NotifyMentionAgent       NotificationType = "mention_agent"
	NotifyReviewerComment    NotificationType = Reviewer + "_comment"
)

// Notification is an actionable notice that stays pending until a consumer deletes it.
type Notification struct {
	ID        string              `json:"id"`
	Type      NotificationType    `json:"type"`
	Payload   NotificationPayload `json:"payload"`
	CreatedAt time.Time           `json:"createdAt"`
}

// NotificationPayload carries the fields a consumer needs to act. Unused fields are omitted.
type NotificationPayload struct {
	ItemID      string     `json:"itemId"`
	ItemNumber  int        `json:"itemNumber,omitempty"`
	ItemTitle   string     `json:"itemTitle"`
	CommentID   string     `json:"commentId,omitempty"`
	CommentText string     `json:"commentText,omitempty"`
	CommentedAt *time.Time `json:"commentedAt,omitempty"`
	Author      string     `json:"author,omitempty"`
	TargetAgent Agent      `json:"targetAgent,omitempty"`
	MovedBy     string     `json:"movedBy,omitempty"`
}
