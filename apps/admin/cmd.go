package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/user"
)

var (
	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrations only apply to the postgres engine")
)

type commandLine struct {
	db       *sql.DB // nil unless the postgres engine is used
	usrSvc   *user.Service
	schSvc   *school.Service
	validate *validator.Validate
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, up-to VERSION, down, down-to VERSION, redo, status, ...)")
	fmt.Fprintln(cli.out, "  addschool -slug SLUG -name NAME - add a school")
	fmt.Fprintln(cli.out, "  adduser -school SLUG -role ROLE -name NAME -email EMAIL - add a user, printing its access code if it has one")
	fmt.Fprintln(cli.out, "  regencode -email EMAIL - issue a new access code to an admin or teacher")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addSchoolCmd := flag.NewFlagSet("addschool", flag.ContinueOnError)
	addSchoolSlug := addSchoolCmd.String("slug", "", "The school's slug, as found in its URLs.")
	addSchoolName := addSchoolCmd.String("name", "", "The school's name.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserSchool := addUserCmd.String("school", "", "The slug of the user's school.")
	addUserRole := addUserCmd.String("role", "", "One of admin, teacher, student & parent.")
	addUserName := addUserCmd.String("name", "", "The user's name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")

	regenCodeCmd := flag.NewFlagSet("regencode", flag.ContinueOnError)
	regenCodeEmail := regenCodeCmd.String("email", "", "The email of the admin or teacher.")

	for _, fs := range []*flag.FlagSet{addSchoolCmd, addUserCmd, regenCodeCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "addschool":
		if err := addSchoolCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addSchoolSlug == "" || *addSchoolName == "" {
			addSchoolCmd.Usage()
			return errHelp
		}
		return cli.addSchool(*addSchoolSlug, *addSchoolName)
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserSchool == "" || *addUserRole == "" || *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserSchool, *addUserRole, *addUserName, *addUserEmail)
	case "regencode":
		if err := regenCodeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *regenCodeEmail == "" {
			regenCodeCmd.Usage()
			return errHelp
		}
		return cli.regenCode(*regenCodeEmail)
	default:
		cli.printUsage()
		return errHelp
	}
}
