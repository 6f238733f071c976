package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"campus-attendance/internal/config"
	"campus-attendance/internal/docstore"
	"campus-attendance/internal/handler"
	"campus-attendance/internal/i18n"
	"campus-attendance/internal/logger"
	"campus-attendance/internal/mattermost"
	"campus-attendance/internal/query"
	"campus-attendance/internal/service"
	"campus-attendance/internal/softfail"
	"campus-attendance/internal/store"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)

	n, err := i18n.Init(cfg.DefaultLocale)
	if err != nil {
		log.WithError(err).Fatal("load locales")
	}
	log.WithFields(logrus.Fields{"files": n, "default": cfg.DefaultLocale}).Info("locales loaded")

	db, err := openStore(cfg)
	if err != nil {
		log.WithError(err).WithField("backend", cfg.Backend).Fatal("open document store")
	}
	defer db.Close(context.Background())
	log.WithField("backend", cfg.Backend).Info("document store ready")

	sink := softfail.LogSink{Log: log}

	// Stores
	parts := store.NewPartitionedStore(db, sink)
	mirror := store.NewMirrorStore(db)
	engine := query.NewEngine(parts, sink, cfg.Limits, cfg.QueryConcurrency)

	// Services
	notificationSvc := service.NewNotificationService(mirror, log)
	var notifier service.Notifier = notificationSvc
	if cfg.MattermostURL != "" && cfg.MattermostChannelID != "" {
		mm := mattermost.NewClient(cfg.MattermostURL, cfg.MattermostBotToken)
		notifier = service.NewChatRelay(notificationSvc, mm, cfg.MattermostChannelID)
		log.WithField("channel", cfg.MattermostChannelID).Info("relaying leave notifications to mattermost")
	}
	attendanceSvc := service.NewAttendanceService(parts, mirror, engine, sink, log)
	leaveSvc := service.NewLeaveService(parts, mirror, engine, notifier, sink, log, cfg.DefaultApprovalFlow)

	// Routes
	app := handler.NewApp("campus-attendance", log)
	handler.NewAttendanceHandler(attendanceSvc, log).RegisterRoutes(app)
	handler.NewLeaveHandler(leaveSvc).RegisterRoutes(app)
	handler.NewNotificationHandler(notificationSvc).RegisterRoutes(app)

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.Env}).Info("server started")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("shutdown")
	}
}

func openStore(cfg *config.Config) (docstore.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch cfg.Backend {
	case config.BackendMongo:
		conn, err := docstore.NewMongoDB(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		return docstore.NewMongo(ctx, conn, store.BaseAttendance, store.BaseLeave,
			store.CollectionUsers, store.CollectionTeachers, store.CollectionLeaveRequests, store.CollectionNotifications)
	case config.BackendFirestore:
		return docstore.NewFirestore(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials)
	case config.BackendMemory:
		return docstore.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
}
