package main

import (
	"context"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/organisation"
	"github.com/trezcool/ratiba/core/token"
	"github.com/trezcool/ratiba/core/user"
	emailsvc "github.com/trezcool/ratiba/services/email"
	logsvc "github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/storage/database"
)

var errNoSQLDatabase = errors.New("migrations require DATABASE_ENGINE=postgres")

func main() {
	std := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Fatalf("loading config: %v", err)
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(false)

	ctx := context.Background()

	// migrations are run explicitly from here
	repos, err := database.OpenRepositories(ctx, conf, false /* migrate */)
	if err != nil {
		std.Fatalf("setting up database: %v", err)
	}
	defer repos.Close()

	tokens, err := token.NewService(conf)
	if err != nil {
		std.Fatalf("setting up tokens: %v", err)
	}

	// admin-created accounts are verified, so nothing is ever mailed from here
	mailQueue := emailsvc.NewQueue(emailsvc.NewConsoleSender(conf, logger), logger, conf)
	mailQueue.Start(ctx)
	defer mailQueue.Stop()

	orgSvc := organisation.NewService(repos.Organisations, logger)
	cli := commandLine{
		out:    os.Stdout,
		orgSvc: orgSvc,
		usrSvc: user.NewService(
			repos.Users,
			orgSvc,
			tokens,
			user.NewBcryptHasher(conf.Auth.BcryptCost),
			mailQueue,
			logger,
			conf,
		),
		runMigrations: func(ctx context.Context, command string, args ...string) error {
			if repos.DB == nil {
				return errNoSQLDatabase
			}
			return database.RunMigrations(ctx, repos.DB, command, args...)
		},
	}

	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			std.Printf("\nerror: %s\n", err)
		}
		mailQueue.Stop()
		_ = repos.Close()
		os.Exit(1)
	}
}
