package models

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a transient message shown to the user.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}
