package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"campus-attendance/internal/model"
	"campus-attendance/internal/service"
)

type LeaveHandler struct {
	svc *service.LeaveService
}

func NewLeaveHandler(svc *service.LeaveService) *LeaveHandler {
	return &LeaveHandler{svc: svc}
}

// StatusUpdate is an approver's decision on a pending request.
type StatusUpdate struct {
	Action     model.LeaveAction `json:"action"`
	ApproverID string            `json:"approverId"`
	Remarks    string            `json:"remarks"`
}

func (h *LeaveHandler) HandleCreate(c *fiber.Ctx) error {
	var req model.LeaveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid body")
	}
	created, err := h.svc.CreateLeaveRequest(localeCtx(c), &req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *LeaveHandler) HandleStatus(c *fiber.Ctx) error {
	var upd StatusUpdate
	if err := c.BodyParser(&upd); err != nil {
		return badRequest("invalid body")
	}
	if upd.ApproverID == "" {
		return badRequest("approverId is required")
	}
	updated, err := h.svc.UpdateLeaveRequestStatus(localeCtx(c), c.Params("id"), upd.Action, upd.ApproverID, upd.Remarks)
	if err != nil {
		return err
	}
	return c.JSON(updated)
}

func (h *LeaveHandler) HandleReapply(c *fiber.Ctx) error {
	var changes service.ReapplyChanges
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&changes); err != nil {
			return badRequest("invalid body")
		}
	}
	next, err := h.svc.Reapply(localeCtx(c), c.Params("id"), changes)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(next)
}

func (h *LeaveHandler) HandleByUser(c *fiber.Ctx) error {
	reqs, err := h.svc.GetLeaveRequestsByUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(reqs)
}

// HandleClass serves ?year&sem&div&subject&month=YYYY-MM.
func (h *LeaveHandler) HandleClass(c *fiber.Ctx) error {
	month, err := time.Parse("2006-01", c.Query("month"))
	if err != nil {
		return badRequest("month must be YYYY-MM")
	}
	scope := model.Scope{Year: c.Query("year"), Sem: c.Query("sem"), Div: c.Query("div"), Subject: c.Query("subject")}
	reqs, err := h.svc.GetClassLeavesByMonth(c.UserContext(), scope, month.Year(), month.Month())
	if err != nil {
		return err
	}
	return c.JSON(reqs)
}

func (h *LeaveHandler) HandlePending(c *fiber.Ctx) error {
	reqs, err := h.svc.GetPendingLeaves(c.UserContext(), c.Query("level"))
	if err != nil {
		return err
	}
	return c.JSON(reqs)
}

func (h *LeaveHandler) HandlePurge(c *fiber.Ctx) error {
	if err := h.svc.PurgeLeaveRequest(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RegisterRoutes registers all leave routes on the given router.
func (h *LeaveHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/api/leaves")
	g.Post("/", h.HandleCreate)
	g.Get("/user/:userId", h.HandleByUser)
	g.Get("/class", h.HandleClass)
	g.Get("/pending", h.HandlePending)
	g.Patch("/:id/status", h.HandleStatus)
	g.Post("/:id/reapply", h.HandleReapply)
	g.Delete("/:id", h.HandlePurge)
}
