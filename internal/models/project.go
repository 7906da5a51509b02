package models

import (
	"fmt"
	"time"
)

// Collection names shared with the mobile client.
const (
	ProjectsCollection          = "projects"
	NotificationsCollection     = "notifications"
	WorkerAssignmentsCollection = "worker_assignments"
	WorkerAccountsCollection    = "worker_accounts"
	EngineerAccountsCollection  = "engineer_accounts"
)

// DependentCollections hold records owned by a project through their
// projectId field. They share the deleted/deletedAt/deletedBy flag set.
var DependentCollections = []string{
	"materials",
	"equipment",
	"workers",
	"budget_logs",
	"task_photos",
	"usage_submissions",
}

// Field names as stored in documents.
const (
	FieldProjectID  = "projectId"
	FieldUserID     = "userId"
	FieldEngineerID = "engineerId"
	FieldDeleted    = "deleted"
	FieldDeletedAt  = "deletedAt"
	FieldDeletedBy  = "deletedBy"
	FieldStatus     = "status"
	FieldDecidedAt  = "decidedAt"
	FieldRemovedAt  = "removedAt"
	FieldFCMToken   = "fcmToken"
)

// Project is the parent document whose removal triggers the cascade.
type Project struct {
	ID         string `bson:"_id,omitempty" json:"id"`
	Name       string `bson:"name,omitempty" json:"name,omitempty"`
	EngineerID string `bson:"engineerId" json:"engineerId"`
}

// ProjectFromFields reads the prior state of a project document.
func ProjectFromFields(id string, fields map[string]interface{}) Project {
	return Project{
		ID:         id,
		Name:       StringField(fields, "name"),
		EngineerID: StringField(fields, FieldEngineerID),
	}
}

// SoftDelete is the flag set applied to dependent records and notifications.
type SoftDelete struct {
	Deleted   bool      `bson:"deleted" json:"deleted"`
	DeletedAt time.Time `bson:"deletedAt" json:"deletedAt"`
	DeletedBy string    `bson:"deletedBy" json:"deletedBy"`
}

// Fields returns the update document for the flag set.
func (s SoftDelete) Fields() map[string]interface{} {
	return map[string]interface{}{
		FieldDeleted:   s.Deleted,
		FieldDeletedAt: s.DeletedAt,
		FieldDeletedBy: s.DeletedBy,
	}
}

// StringField returns fields[key] as a string. Non-string scalars are
// formatted, nil and missing keys give "".
func StringField(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}
