package main

import (
	"context"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/user"
	logsvc "github.com/trezcool/masomo-portal/services/logger"
	"github.com/trezcool/masomo-portal/storage/database"
	boiledrepos "github.com/trezcool/masomo-portal/storage/database/sqlboiler"
	"github.com/trezcool/masomo-portal/storage/mongodb"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stderr, conf)
	logger.Enable(false)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	school.InitValidators(validate, translator)

	cli := commandLine{validate: validate, out: os.Stdout}
	ctx := context.Background()

	// set up DB
	switch conf.Database.Engine {
	case core.EnginePostgres:
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			logger.Fatal("setting up database", err)
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		defer db.Close()

		cli.db = db
		cli.usrSvc = user.NewService(boiledrepos.NewUserRepository(db))
		cli.schSvc = school.NewService(boiledrepos.NewSchoolRepository(db))
	case core.EngineMongoDB:
		db, err := mongodb.Open(ctx, conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		defer func() { _ = db.Client().Disconnect(ctx) }()
		if err = mongodb.CreateIndexes(ctx, db); err != nil {
			logger.Fatal("creating indexes", err)
		}

		cli.usrSvc = user.NewService(mongodb.NewUserRepository(db))
		cli.schSvc = school.NewService(mongodb.NewSchoolRepository(db))
	default:
		logger.Fatal("admin commands need a persistent database", errors.Errorf("unsupported engine %q", conf.Database.Engine))
	}

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		return 1
	}
	return 0
}
