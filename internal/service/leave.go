package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campus-attendance/internal/docstore"
	"campus-attendance/internal/i18n"
	"campus-attendance/internal/model"
	"campus-attendance/internal/query"
	"campus-attendance/internal/softfail"
	"campus-attendance/internal/store"
)

// Notifier delivers a notification to its recipient.
type Notifier interface {
	Emit(ctx context.Context, n *model.Notification) error
}

type LeaveService struct {
	parts  *store.PartitionedStore
	mirror *store.MirrorStore
	engine *query.Engine
	notify Notifier
	sink   softfail.Sink
	log    logrus.FieldLogger
	flow   []string
	now    func() time.Time
}

// NewLeaveService builds the service. defaultFlow is the approval chain of requests that do
// not carry their own.
func NewLeaveService(parts *store.PartitionedStore, mirror *store.MirrorStore, engine *query.Engine, notify Notifier, sink softfail.Sink, log logrus.FieldLogger, defaultFlow []string) *LeaveService {
	return &LeaveService{
		parts:  parts,
		mirror: mirror,
		engine: engine,
		notify: notify,
		sink:   sink,
		log:    log,
		flow:   slices.Clone(defaultFlow),
		now:    time.Now,
	}
}

// CreateLeaveRequest submits a new request at the first level of its approval flow. The flat
// record is the source of truth; the scoped copy and the notification are best-effort.
func (s *LeaveService) CreateLeaveRequest(ctx context.Context, req *model.LeaveRequest) (*model.LeaveRequest, error) {
	flow := req.ApprovalFlow
	if len(flow) == 0 {
		flow = s.flow
	}
	if err := req.Submit(flow); err != nil {
		return nil, err
	}
	req.ReappliedFrom = ""
	if err := s.persistNew(ctx, req); err != nil {
		return nil, fmt.Errorf("create leave request: %w", err)
	}
	s.notifyTransition(ctx, req, "submitted", "")
	return req, nil
}

// UpdateLeaveRequestStatus applies an approver decision. The scoped copy is updated first on a
// best-effort basis, then the flat record, whose failure is returned, then the applicant is
// notified.
func (s *LeaveService) UpdateLeaveRequestStatus(ctx context.Context, id string, action model.LeaveAction, approverID, remarks string) (*model.LeaveRequest, error) {
	req, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	prevLevel := req.CurrentApprovalLevel
	if err := req.Apply(action, approverID, remarks, s.now().UTC()); err != nil {
		return nil, err
	}

	if req.Scope != nil {
		fields, err := docstore.Encode(req)
		if err == nil {
			err = s.parts.UpdateLeave(ctx, *req.Scope, req.FromDate, req.ID, fields)
		}
		if err != nil {
			s.reportMirror("update scoped leave", req, err)
		}
	}

	if err := s.mirror.Upsert(ctx, store.CollectionLeaveRequests, req.ID, req); err != nil {
		return nil, fmt.Errorf("update leave request %s: %w", id, err)
	}

	s.log.WithFields(logrus.Fields{
		"leave":    req.ID,
		"action":   action,
		"level":    prevLevel,
		"status":   req.Status,
		"approver": approverID,
	}).Info("leave request updated")

	s.notifyTransition(ctx, req, transitionEvent(req, action), prevLevel)
	return req, nil
}

// ReapplyChanges overrides fields of a resubmitted request. Zero values keep the original.
type ReapplyChanges struct {
	Type     model.LeaveType `json:"leaveType"`
	FromDate string          `json:"fromDate"`
	ToDate   string          `json:"toDate"`
	Reason   string          `json:"reason"`
}

// Reapply creates a new pending request from a rejected or returned one. The original is
// left unchanged.
func (s *LeaveService) Reapply(ctx context.Context, originalID string, changes ReapplyChanges) (*model.LeaveRequest, error) {
	orig, err := s.get(ctx, originalID)
	if err != nil {
		return nil, err
	}
	next, err := orig.Resubmission()
	if err != nil {
		return nil, err
	}

	if changes.Type != "" {
		next.Type = changes.Type
	}
	if changes.Reason != "" {
		next.Reason = changes.Reason
	}
	if changes.FromDate != "" || changes.ToDate != "" {
		if changes.FromDate != "" {
			next.FromDate = changes.FromDate
		}
		if changes.ToDate != "" {
			next.ToDate = changes.ToDate
		}
		next.Days = 0
	}

	if err := s.persistNew(ctx, next); err != nil {
		return nil, fmt.Errorf("reapply leave request %s: %w", originalID, err)
	}
	s.notifyTransition(ctx, next, "reapplied", "")
	return next, nil
}

// GetClassLeavesByMonth reads the scoped leave copies of one subject and month.
func (s *LeaveService) GetClassLeavesByMonth(ctx context.Context, scope model.Scope, year int, month time.Month) ([]model.LeaveRequest, error) {
	return s.engine.QueryLeavesByMonth(ctx, scope, year, month)
}

// GetLeaveRequestsByUser returns a user's requests, newest first.
func (s *LeaveService) GetLeaveRequestsByUser(ctx context.Context, userID string) ([]model.LeaveRequest, error) {
	reqs, err := store.QueryByUser[model.LeaveRequest](ctx, s.mirror, store.CollectionLeaveRequests, userID)
	if err != nil {
		return nil, fmt.Errorf("leave requests of user %s: %w", userID, err)
	}
	sortNewestFirst(reqs)
	return reqs, nil
}

// GetPendingLeaves returns the requests waiting at an approval level, or at any level when
// level is empty.
func (s *LeaveService) GetPendingLeaves(ctx context.Context, level string) ([]model.LeaveRequest, error) {
	filters := []docstore.Filter{{Field: "status", Value: model.LeaveStatusPending}}
	if level != "" {
		filters = append(filters, docstore.Filter{Field: "currentApprovalLevel", Value: level})
	}
	reqs, err := store.QueryWhere[model.LeaveRequest](ctx, s.mirror, store.CollectionLeaveRequests, filters...)
	if err != nil {
		return nil, fmt.Errorf("pending leave requests: %w", err)
	}
	sortNewestFirst(reqs)
	return reqs, nil
}

// PurgeLeaveRequest removes a request from both stores.
func (s *LeaveService) PurgeLeaveRequest(ctx context.Context, id string) error {
	req, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if req.Scope != nil {
		if err := s.parts.DeleteLeave(ctx, *req.Scope, req.FromDate, req.ID); err != nil {
			s.reportMirror("purge scoped leave", req, err)
		}
	}
	if err := s.mirror.Delete(ctx, store.CollectionLeaveRequests, id); err != nil {
		return fmt.Errorf("purge leave request %s: %w", id, err)
	}
	s.log.WithField("leave", id).Info("leave request purged")
	return nil
}

func (s *LeaveService) get(ctx context.Context, id string) (*model.LeaveRequest, error) {
	var req model.LeaveRequest
	found, err := s.mirror.Get(ctx, store.CollectionLeaveRequests, id, &req)
	if err != nil {
		return nil, fmt.Errorf("get leave request %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrLeaveNotFound, id)
	}
	return &req, nil
}

// persistNew validates and writes a freshly submitted request.
func (s *LeaveService) persistNew(ctx context.Context, req *model.LeaveRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Scope != nil {
		if err := store.CheckScope(*req.Scope, req.FromDate); err != nil {
			return err
		}
	}

	req.ID = uuid.NewString()
	now := s.now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	if err := s.mirror.Upsert(ctx, store.CollectionLeaveRequests, req.ID, req); err != nil {
		return err
	}
	if req.Scope != nil {
		if err := s.parts.WriteLeave(ctx, *req.Scope, req); err != nil {
			s.reportMirror("write scoped leave", req, err)
		}
	}
	return nil
}

func (s *LeaveService) reportMirror(op string, req *model.LeaveRequest, err error) {
	path, _ := s.parts.LeavePath(*req.Scope, req.FromDate, req.ID)
	s.sink.Report(softfail.Event{Kind: softfail.MirrorInconsistency, Op: op, Path: path, Err: err})
}

// transitionEvent names the notification raised by an applied action.
func transitionEvent(req *model.LeaveRequest, action model.LeaveAction) string {
	switch {
	case action == model.LeaveActionApprove && req.Status == model.LeaveStatusApproved:
		return "approved"
	case action == model.LeaveActionApprove:
		return "forwarded"
	case action == model.LeaveActionReject:
		return "rejected"
	default:
		return "returned"
	}
}

func (s *LeaveService) notifyTransition(ctx context.Context, req *model.LeaveRequest, event, prevLevel string) {
	data := map[string]any{
		"LeaveType": i18n.T(ctx, "leave_type_"+string(req.Type)),
		"Days":      req.Days,
		"FromDate":  req.FromDate,
		"ToDate":    req.ToDate,
		"Level":     req.CurrentApprovalLevel,
		"PrevLevel": prevLevel,
		"Remarks":   req.Remarks,
	}
	n := &model.Notification{
		UserID:   req.UserID,
		Title:    i18n.T(ctx, "leave_"+event+"_title"),
		Message:  i18n.T(ctx, "leave_"+event+"_message", data),
		Type:     model.NotificationInfo,
		Category: model.NotificationCategoryLeave,
		Priority: model.PriorityNormal,
		Details:  model.DetailsOf(req),
	}
	switch event {
	case "approved":
		n.Type = model.NotificationSuccess
	case "rejected":
		n.Type = model.NotificationError
		n.Priority = model.PriorityHigh
	case "returned":
		n.Type = model.NotificationWarning
		n.Priority = model.PriorityHigh
		n.ActionRequired = true
	}

	if err := s.notify.Emit(ctx, n); err != nil {
		s.sink.Report(softfail.Event{
			Kind: softfail.NotificationFailed,
			Op:   "leave " + event,
			Path: store.CollectionLeaveRequests + "/" + req.ID,
			Err:  err,
		})
	}
}

func sortNewestFirst(reqs []model.LeaveRequest) {
	sort.SliceStable(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})
}
