package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/ratiba/apps/api/echo"
	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/auth"
	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/organisation"
	"github.com/trezcool/ratiba/core/token"
	"github.com/trezcool/ratiba/core/user"
	emailsvc "github.com/trezcool/ratiba/services/email"
	logsvc "github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/storage/database"
)

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	if err := run(conf, logger); err != nil {
		logger.Error(err.Error(), err)
		logger.Wait()
		os.Exit(1)
	}
	logger.Wait()
}

func run(conf *core.Config, logger *logsvc.RollbarLogger) error {
	// =========================================================================
	// Set up Dependencies

	ctx := context.Background()

	repos, err := database.OpenRepositories(ctx, conf, true /* migrate */)
	if err != nil {
		return errors.Wrap(err, "setting up database")
	}
	dbLogger := logger.Named("DB : ")
	dbLogger.Info("connected", map[string]interface{}{"engine": conf.Database.Engine})
	defer func() {
		if err := repos.Close(); err != nil {
			dbLogger.Error("failed to close", err)
		}
	}()

	tokens, err := token.NewService(conf)
	if err != nil {
		return errors.Wrap(err, "setting up tokens")
	}

	mailQueue := emailsvc.NewQueue(emailsvc.NewSender(conf, logger), logger, conf)
	mailQueue.Start(ctx)
	defer func() {
		// queued mail gets the same grace period as in-flight requests
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()
		if err := mailQueue.Shutdown(ctx); err != nil {
			logger.Warn("mail queue shutdown cut short", err)
		}
	}()

	orgSvc := organisation.NewService(repos.Organisations, logger)
	usrSvc := user.NewService(
		repos.Users,
		orgSvc,
		tokens,
		user.NewBcryptHasher(conf.Auth.BcryptCost),
		mailQueue,
		logger,
		conf,
	)
	lessonSvc := lesson.NewService(repos.Lessons, lesson.NewPolicy(usrSvc), logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	if conf.Server.DebugAddress != "" {
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
				logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address:        conf.Server.Address,
		AllowedOrigins: conf.Server.AllowedOrigins,
		Debug:          conf.Debug,
		TestMode:       conf.TestMode,
		Logger:         logger,
		Auth:           auth.NewResolver(tokens, usrSvc),
		UserSvc:        usrSvc,
		LessonSvc:      lessonSvc,
		Shutdown: func() {
			select {
			case shutdown <- syscall.SIGTERM:
			default: // already shutting down
			}
		},
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("API listening on %s", conf.Server.Address))
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		if errors.Cause(err) == http.ErrServerClosed {
			return nil
		}
		return errors.Wrap(err, "server error")

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			return errors.Wrap(err, "could not stop server gracefully")
		}
	}
	return nil
}
