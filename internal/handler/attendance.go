package handler

import (
	"bytes"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"campus-attendance/internal/export"
	"campus-attendance/internal/model"
	"campus-attendance/internal/query"
	"campus-attendance/internal/service"
)

type AttendanceHandler struct {
	svc *service.AttendanceService
	log logrus.FieldLogger
}

func NewAttendanceHandler(svc *service.AttendanceService, log logrus.FieldLogger) *AttendanceHandler {
	return &AttendanceHandler{svc: svc, log: log}
}

// BulkMarkRequest marks one subject's class list for a day.
type BulkMarkRequest struct {
	model.Scope
	Records []model.AttendanceRecord `json:"records"`
}

// BulkFailure describes one record of a bulk request that was not written.
type BulkFailure struct {
	Index      int    `json:"index"`
	RollNumber string `json:"rollNumber"`
	Error      string `json:"error"`
}

// HandleMark marks one record. The scope is read from the record's own fields.
func (h *AttendanceHandler) HandleMark(c *fiber.Ctx) error {
	var rec model.AttendanceRecord
	if err := c.BodyParser(&rec); err != nil {
		return badRequest("invalid body")
	}
	scope := model.Scope{Year: rec.Year, Sem: rec.Sem, Div: rec.Div, Subject: rec.Subject}
	if err := h.svc.MarkAttendance(c.UserContext(), scope, &rec); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (h *AttendanceHandler) HandleMarkBulk(c *fiber.Ctx) error {
	var req BulkMarkRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid body")
	}
	if len(req.Records) == 0 {
		return badRequest("records are required")
	}

	errs := h.svc.MarkAttendanceBulk(c.UserContext(), req.Scope, req.Records)
	failures := make([]BulkFailure, 0)
	for i, err := range errs {
		if err != nil {
			failures = append(failures, BulkFailure{Index: i, RollNumber: req.Records[i].RollNumber, Error: err.Error()})
		}
	}
	return c.JSON(fiber.Map{
		"marked": len(req.Records) - len(failures),
		"failed": failures,
	})
}

func (h *AttendanceHandler) HandleByUser(c *fiber.Ctx) error {
	records, err := h.svc.GetAttendanceByUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(records)
}

// HandleOrganized serves ?year&sem&div&subjects=a,b&roll&from&to.
func (h *AttendanceHandler) HandleOrganized(c *fiber.Ctx) error {
	class := model.Scope{Year: c.Query("year"), Sem: c.Query("sem"), Div: c.Query("div")}
	subjects := splitCSV(c.Query("subjects"))
	if len(subjects) == 0 {
		return badRequest("subjects are required")
	}
	organized, err := h.svc.GetOrganizedAttendanceByUserAndDateRange(c.UserContext(), class, subjects, c.Query("roll"), c.Query("from"), c.Query("to"))
	if err != nil {
		return err
	}
	return c.JSON(organized)
}

// HandleExport assembles a batch export. ?format=csv writes one row per student and subject,
// ?format=csv-student one row per student; otherwise the grouped records are returned as JSON.
func (h *AttendanceHandler) HandleExport(c *fiber.Ctx) error {
	var req query.BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid body")
	}

	log := h.log.WithField("export", req.Year+"/"+req.Sem+"/"+req.Div)
	result, err := h.svc.GetBatchAttendanceForExport(c.UserContext(), req, func(p float64) {
		log.WithField("progress", p).Debug("batch export progress")
	})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch c.Query("format") {
	case "":
		return c.JSON(result)
	case "csv":
		err = export.WriteSubjectCSV(&buf, result, req.Students, req.Subjects)
	case "csv-student":
		err = export.WriteStudentCSV(&buf, result, req.Students, req.Subjects)
	default:
		return badRequest("unknown format " + c.Query("format"))
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="attendance.csv"`)
	return c.Send(buf.Bytes())
}

// RegisterRoutes registers all attendance routes on the given router.
func (h *AttendanceHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/api/attendance")
	g.Post("/", h.HandleMark)
	g.Post("/bulk", h.HandleMarkBulk)
	g.Get("/user/:userId", h.HandleByUser)
	g.Get("/organized", h.HandleOrganized)
	g.Post("/export", h.HandleExport)
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
