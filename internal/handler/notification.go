package handler

import (
	"github.com/gofiber/fiber/v2"

	"campus-attendance/internal/service"
)

type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) HandleByUser(c *fiber.Ctx) error {
	list, err := h.svc.ListByUser(c.UserContext(), c.Params("userId"), c.QueryBool("archived"))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *NotificationHandler) HandleRead(c *fiber.Ctx) error {
	if err := h.svc.MarkRead(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) HandleArchive(c *fiber.Ctx) error {
	if err := h.svc.Archive(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.svc.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/api/notifications")
	g.Get("/user/:userId", h.HandleByUser)
	g.Post("/:id/read", h.HandleRead)
	g.Post("/:id/archive", h.HandleArchive)
	g.Delete("/:id", h.HandleDelete)
}
