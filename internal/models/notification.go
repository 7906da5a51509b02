package models

import (
	"time"
)

type Notification struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	UserID    string     `bson:"userId" json:"userId"`
	ProjectID string     `bson:"projectId,omitempty" json:"projectId,omitempty"` // Optional, empty for account-level notices
	Type      string     `bson:"type" json:"type"`                               // e.g. "task_assigned", "usage_submitted"
	Title     string     `bson:"title" json:"title"`                             // Short headline
	Body      string     `bson:"body" json:"body"`                               // Descriptive content
	RelatedID string     `bson:"relatedId,omitempty" json:"relatedId,omitempty"` // Optional reference to task/material/etc.
	Deleted   bool       `bson:"deleted,omitempty" json:"deleted,omitempty"`
	DeletedAt *time.Time `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	DeletedBy string     `bson:"deletedBy,omitempty" json:"deletedBy,omitempty"`
}

// NotificationFromFields reads a notification out of a raw document field set.
// Unknown or mistyped fields are left at their zero value.
func NotificationFromFields(id string, fields map[string]interface{}) Notification {
	return Notification{
		ID:        id,
		UserID:    StringField(fields, FieldUserID),
		ProjectID: StringField(fields, FieldProjectID),
		Type:      StringField(fields, "type"),
		Title:     StringField(fields, "title"),
		Body:      StringField(fields, "body"),
		RelatedID: StringField(fields, "relatedId"),
	}
}
