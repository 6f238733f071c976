package model

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

type LeaveType string

const (
	LeaveTypeCasual       LeaveType = "CL"
	LeaveTypeMedical      LeaveType = "ML"
	LeaveTypeEarned       LeaveType = "EL"
	LeaveTypeLossOfPay    LeaveType = "LOP"
	LeaveTypeCompensatory LeaveType = "COH"
	LeaveTypeSick         LeaveType = "SL"
	LeaveTypeOnDuty       LeaveType = "OD"
	LeaveTypeOther        LeaveType = "OTH"
)

type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "pending"
	LeaveStatusApproved LeaveStatus = "approved"
	LeaveStatusRejected LeaveStatus = "rejected"
	LeaveStatusReturned LeaveStatus = "returned"
)

// LeaveAction is a decision taken by an approver on a pending request.
type LeaveAction string

const (
	LeaveActionApprove LeaveAction = "approve"
	LeaveActionReject  LeaveAction = "reject"
	LeaveActionReturn  LeaveAction = "return"
)

// ErrInvalidTransition is returned when an action does not apply to the request's state.
var ErrInvalidTransition = errors.New("invalid leave status transition")

// ApprovalStep records one decision in the request's history.
type ApprovalStep struct {
	Level      string      `bson:"level" json:"level"`
	Action     LeaveAction `bson:"action" json:"action"`
	ApproverID string      `bson:"approverId" json:"approverId"`
	Remarks    string      `bson:"remarks,omitempty" json:"remarks,omitempty"`
	At         time.Time   `bson:"at" json:"at"`
}

type LeaveRequest struct {
	ID                   string         `bson:"id" json:"id"`
	UserID               string         `bson:"userId" json:"userId" validate:"required"`
	UserName             string         `bson:"userName" json:"userName"`
	Role                 string         `bson:"role,omitempty" json:"role,omitempty"`
	Department           string         `bson:"department,omitempty" json:"department,omitempty"`
	Type                 LeaveType      `bson:"leaveType" json:"leaveType" validate:"required,oneof=CL ML EL LOP COH SL OD OTH"`
	FromDate             string         `bson:"fromDate" json:"fromDate" validate:"required,datetime=2006-01-02"`
	ToDate               string         `bson:"toDate" json:"toDate" validate:"required,datetime=2006-01-02"`
	Days                 int            `bson:"days" json:"days"`
	Reason               string         `bson:"reason" json:"reason"`
	Status               LeaveStatus    `bson:"status" json:"status"`
	CurrentApprovalLevel string         `bson:"currentApprovalLevel" json:"currentApprovalLevel"`
	ApprovalFlow         []string       `bson:"approvalFlow" json:"approvalFlow"`
	ApproverID           string         `bson:"approverId,omitempty" json:"approverId,omitempty"`
	ApprovedAt           *time.Time     `bson:"approvedAt,omitempty" json:"approvedAt,omitempty"`
	Remarks              string         `bson:"remarks,omitempty" json:"remarks,omitempty"`
	Scope                *Scope         `bson:"scope,omitempty" json:"scope,omitempty"`
	ReappliedFrom        string         `bson:"reappliedFrom,omitempty" json:"reappliedFrom,omitempty"`
	History              []ApprovalStep `bson:"history,omitempty" json:"history,omitempty"`
	CreatedAt            time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// Validate checks caller-supplied fields and fills Days when it is zero.
func (r *LeaveRequest) Validate() error {
	if err := validateStruct("leave request", r); err != nil {
		return err
	}
	from, _ := time.Parse(time.DateOnly, r.FromDate)
	to, _ := time.Parse(time.DateOnly, r.ToDate)
	if to.Before(from) {
		return fmt.Errorf("%w: leave request: toDate %s is before fromDate %s", ErrInvalidRecord, r.ToDate, r.FromDate)
	}
	if r.Days <= 0 {
		r.Days = int(to.Sub(from).Hours()/24) + 1
	}
	return nil
}

// Submit puts a new request at the first level of its approval flow.
func (r *LeaveRequest) Submit(flow []string) error {
	if len(flow) == 0 {
		return fmt.Errorf("%w: leave request: empty approval flow", ErrInvalidRecord)
	}
	r.ApprovalFlow = slices.Clone(flow)
	r.Status = LeaveStatusPending
	r.CurrentApprovalLevel = flow[0]
	r.ApproverID = ""
	r.ApprovedAt = nil
	r.Remarks = ""
	r.History = nil
	return nil
}

// Apply performs an approver decision. Approving at the last level of the flow approves the
// request; approving earlier advances it to the next level. Reject and return are terminal
// from any level. Requests that are no longer pending never change.
func (r *LeaveRequest) Apply(action LeaveAction, approverID, remarks string, at time.Time) error {
	if r.Status != LeaveStatusPending {
		return fmt.Errorf("%w: request is already %s", ErrInvalidTransition, r.Status)
	}
	level := r.CurrentApprovalLevel

	switch action {
	case LeaveActionApprove:
		idx := slices.Index(r.ApprovalFlow, level)
		if idx < 0 {
			return fmt.Errorf("%w: level %q is not in the approval flow", ErrInvalidTransition, level)
		}
		if idx == len(r.ApprovalFlow)-1 {
			r.Status = LeaveStatusApproved
			r.ApprovedAt = &at
		} else {
			r.CurrentApprovalLevel = r.ApprovalFlow[idx+1]
		}
	case LeaveActionReject:
		r.Status = LeaveStatusRejected
	case LeaveActionReturn:
		r.Status = LeaveStatusReturned
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	r.ApproverID = approverID
	if remarks != "" {
		r.Remarks = remarks
	}
	r.History = append(r.History, ApprovalStep{
		Level:      level,
		Action:     action,
		ApproverID: approverID,
		Remarks:    remarks,
		At:         at,
	})
	r.UpdatedAt = at
	return nil
}

// Resubmission builds the fresh request that replaces a rejected or returned one.
// The caller assigns the new id and timestamps.
func (r *LeaveRequest) Resubmission() (*LeaveRequest, error) {
	if r.Status != LeaveStatusRejected && r.Status != LeaveStatusReturned {
		return nil, fmt.Errorf("%w: only rejected or returned requests can be reapplied, request is %s", ErrInvalidTransition, r.Status)
	}
	next := &LeaveRequest{
		UserID:        r.UserID,
		UserName:      r.UserName,
		Role:          r.Role,
		Department:    r.Department,
		Type:          r.Type,
		FromDate:      r.FromDate,
		ToDate:        r.ToDate,
		Days:          r.Days,
		Reason:        r.Reason,
		ReappliedFrom: r.ID,
	}
	if r.Scope != nil {
		sc := *r.Scope
		next.Scope = &sc
	}
	if err := next.Submit(r.ApprovalFlow); err != nil {
		return nil, err
	}
	return next, nil
}
