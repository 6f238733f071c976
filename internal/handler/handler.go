// Package handler exposes the attendance, leave and notification services over HTTP.
package handler

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"campus-attendance/internal/docstore"
	"campus-attendance/internal/i18n"
	"campus-attendance/internal/model"
	"campus-attendance/internal/query"
	"campus-attendance/internal/service"
	"campus-attendance/internal/store"
)

// NewApp returns a fiber app using sonic for JSON and mapping service errors to statuses.
func NewApp(appName string, log logrus.FieldLogger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		CaseSensitive:         true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return writeError(c, log, err)
		},
	})
	app.Use(LoggingMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/ready", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

// LoggingMiddleware logs every request with its status and latency.
func LoggingMiddleware(log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		log.WithFields(logrus.Fields{
			"method":  c.Method(),
			"path":    c.Path(),
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start).String(),
		}).Info("request")
		return nil
	}
}

// localeCtx carries the request's preferred locale for notification text.
func localeCtx(c *fiber.Ctx) context.Context {
	return i18n.WithLocale(c.UserContext(), i18n.MatchLocale(c.Get(fiber.HeaderAcceptLanguage)))
}

func statusOf(err error) int {
	var (
		missing *store.MissingScopeError
		limit   *query.LimitExceededError
		fe      *fiber.Error
	)
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.As(err, &missing),
		errors.Is(err, model.ErrInvalidRecord),
		errors.Is(err, query.ErrInvalidRange),
		errors.Is(err, query.ErrInvalidRequest),
		errors.Is(err, docstore.ErrInvalidPath):
		return fiber.StatusBadRequest
	case errors.As(err, &limit):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrLeaveNotFound),
		errors.Is(err, service.ErrNotificationNotFound),
		errors.Is(err, docstore.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func writeError(c *fiber.Ctx, log logrus.FieldLogger, err error) error {
	status := statusOf(err)
	body := fiber.Map{"error": err.Error()}

	var limit *query.LimitExceededError
	if errors.As(err, &limit) {
		body["bound"] = limit.Bound
		body["limit"] = limit.Limit
		body["actual"] = limit.Actual
	}
	if status >= fiber.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("request failed")
		body["error"] = "internal error"
	}
	return c.Status(status).JSON(body)
}

func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}
