package main

import (
	"fmt"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/urfave/cli/v2"

	"github.com/darklitbooks/darklit/pkg/config"
	"github.com/darklitbooks/darklit/pkg/database"
	"github.com/darklitbooks/darklit/pkg/migrations"
	"github.com/darklitbooks/darklit/pkg/users"
	"github.com/darklitbooks/darklit/pkg/version"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	userFlags := []cli.Flag{
		&cli.StringFlag{Name: "email", Required: true},
		&cli.StringFlag{Name: "username", Required: true},
		&cli.IntFlag{Name: "age", Required: true},
		&cli.StringFlag{Name: "avatar", Usage: "uploaded avatar filename"},
		&cli.StringFlag{Name: "password"},
	}

	app := &cli.App{
		Name:    "darklit",
		Usage:   "admin CLI for the darklit catalog",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "bring the database schema up to date",
				Action: func(c *cli.Context) error {
					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						log.Info("no new migrations to run")
						return nil
					}
					log.Info("migrated to new group", logger.Data{
						"group_id":        group.ID,
						"migration_names": group.Migrations.String(),
					})
					return nil
				},
			},
			{
				Name:  "createuser",
				Usage: "create a standard-privilege user",
				Flags: userFlags,
				Action: func(c *cli.Context) error {
					svc := users.NewService(db)
					user, err := svc.CreateUser(c.Context, createParams(c))
					if err != nil {
						return err
					}
					fmt.Printf("Created user %s (id %d)\n", user.Username, user.ID)
					return nil
				},
			},
			{
				Name:  "createsuperuser",
				Usage: "create a user with admin, staff, and superuser flags set",
				Flags: userFlags,
				Action: func(c *cli.Context) error {
					svc := users.NewService(db)
					user, err := svc.CreateSuperuser(c.Context, createParams(c))
					if err != nil {
						return err
					}
					fmt.Printf("Created superuser %s (id %d)\n", user.Username, user.ID)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

func createParams(c *cli.Context) users.CreateUserParams {
	return users.CreateUserParams{
		Email:    c.String("email"),
		Username: c.String("username"),
		Age:      c.Int("age"),
		Avatar:   c.String("avatar"),
		Password: c.String("password"),
	}
}
