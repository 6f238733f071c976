package model

import "time"

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

const (
	NotificationCategoryLeave = "leave"

	PriorityHigh   = "high"
	PriorityNormal = "normal"
)

// LeaveDetails echoes a leave request at the moment a notification was raised.
type LeaveDetails struct {
	LeaveID              string      `bson:"leaveId" json:"leaveId"`
	LeaveType            LeaveType   `bson:"leaveType" json:"leaveType"`
	FromDate             string      `bson:"fromDate" json:"fromDate"`
	ToDate               string      `bson:"toDate" json:"toDate"`
	Days                 int         `bson:"days" json:"days"`
	Status               LeaveStatus `bson:"status" json:"status"`
	CurrentApprovalLevel string      `bson:"currentApprovalLevel" json:"currentApprovalLevel"`
	ApproverID           string      `bson:"approverId,omitempty" json:"approverId,omitempty"`
	Remarks              string      `bson:"remarks,omitempty" json:"remarks,omitempty"`
}

type Notification struct {
	ID             string           `bson:"id" json:"id"`
	UserID         string           `bson:"userId" json:"userId"`
	Title          string           `bson:"title" json:"title"`
	Message        string           `bson:"message" json:"message"`
	Type           NotificationType `bson:"type" json:"type"`
	Category       string           `bson:"category" json:"category"`
	Priority       string           `bson:"priority" json:"priority"`
	ActionRequired bool             `bson:"actionRequired" json:"actionRequired"`
	Read           bool             `bson:"read" json:"read"`
	Archived       bool             `bson:"archived" json:"archived"`
	Details        *LeaveDetails    `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt      time.Time        `bson:"createdAt" json:"createdAt"`
	ReadAt         *time.Time       `bson:"readAt,omitempty" json:"readAt,omitempty"`
}

// DetailsOf snapshots the fields of r that a notification echoes.
func DetailsOf(r *LeaveRequest) *LeaveDetails {
	return &LeaveDetails{
		LeaveID:              r.ID,
		LeaveType:            r.Type,
		FromDate:             r.FromDate,
		ToDate:               r.ToDate,
		Days:                 r.Days,
		Status:               r.Status,
		CurrentApprovalLevel: r.CurrentApprovalLevel,
		ApproverID:           r.ApproverID,
		Remarks:              r.Remarks,
	}
}
