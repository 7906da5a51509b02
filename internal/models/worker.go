package models

import (
	"time"
)

// Assignment statuses. A removed assignment stays distinguishable from a
// rejected or pending one, so it is never flagged deleted.
const (
	AssignmentPending  = "pending"
	AssignmentAccepted = "accepted"
	AssignmentRejected = "rejected"
	AssignmentRemoved  = "removed"
)

type WorkerAssignment struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	ProjectID string     `bson:"projectId" json:"projectId"`
	WorkerID  string     `bson:"workerId,omitempty" json:"workerId,omitempty"`
	Status    string     `bson:"status" json:"status"` // "pending", "accepted", "rejected", "removed"
	DecidedAt *time.Time `bson:"decidedAt,omitempty" json:"decidedAt,omitempty"`
}

// WorkerAccount keeps a weak back-reference to the project it is attached to.
// Deleting that project detaches the account, it is never removed.
type WorkerAccount struct {
	ID        string     `bson:"_id,omitempty" json:"id"`
	Name      string     `bson:"name,omitempty" json:"name,omitempty"`
	ProjectID *string    `bson:"projectId" json:"projectId"`
	FCMToken  string     `bson:"fcmToken,omitempty" json:"fcmToken,omitempty"`
	RemovedAt *time.Time `bson:"removedAt,omitempty" json:"removedAt,omitempty"`
}

type EngineerAccount struct {
	ID       string `bson:"_id,omitempty" json:"id"`
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	FCMToken string `bson:"fcmToken,omitempty" json:"fcmToken,omitempty"`
}
