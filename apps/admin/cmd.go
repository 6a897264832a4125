package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/volatiletech/null/v8"
	"golang.org/x/term"

	"github.com/trezcool/ratiba/core/organisation"
	"github.com/trezcool/ratiba/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	out    io.Writer
	orgSvc *organisation.Service
	usrSvc *user.Service

	runMigrations func(ctx context.Context, command string, args ...string) error
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, redo, ...)")
	fmt.Fprintln(cli.out, "  addorg -name NAME - create an organisation")
	fmt.Fprintln(cli.out, "  listorgs - list organisations")
	fmt.Fprintln(cli.out, "  deleteorg -id ID - delete an organisation with its users and lessons")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL -role ROLE [-org ID] - create a verified user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset a user's password")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Fprintln(cli.out, "Usage: migrate COMMAND [ARGS...]")
			return errHelp
		}
		return cli.runMigrations(ctx, args[2], args[3:]...)

	case "addorg":
		cmd := cli.newFlagSet("addorg")
		name := cmd.String("name", "", "The organisation's name.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addOrg(ctx, *name)

	case "listorgs":
		return cli.listOrgs(ctx)

	case "deleteorg":
		cmd := cli.newFlagSet("deleteorg")
		id := cmd.Int64("id", 0, "The organisation's id.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *id <= 0 {
			cmd.Usage()
			return errHelp
		}
		return cli.deleteOrg(ctx, *id)

	case "adduser":
		cmd := cli.newFlagSet("adduser")
		name := cmd.String("name", "", "The user's full name.")
		email := cmd.String("email", "", "The user's email. The password will be prompted next.")
		role := cmd.String("role", "", "One of admin, teacher or student.")
		orgID := cmd.Int64("org", 0, "The user's organisation id (optional).")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" || *email == "" || *role == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(cmd)
		if err != nil {
			return err
		}
		return cli.addUser(ctx, *name, *email, *role, *orgID, pwd)

	case "resetpassword":
		cmd := cli.newFlagSet("resetpassword")
		email := cmd.String("email", "", "The user's email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(cmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(ctx, *email, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword(cmd *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) addOrg(ctx context.Context, name string) error {
	org, err := cli.orgSvc.Create(ctx, organisation.NewOrganisation{Name: name})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "organisation %d created\n", org.ID)
	return nil
}

func (cli *commandLine) listOrgs(ctx context.Context) error {
	orgs, err := cli.orgSvc.Query(ctx)
	if err != nil {
		return err
	}
	for _, org := range orgs {
		fmt.Fprintf(cli.out, "%d\t%s\n", org.ID, org.Name)
	}
	return nil
}

func (cli *commandLine) deleteOrg(ctx context.Context, id int64) error {
	if err := cli.orgSvc.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "organisation %d deleted\n", id)
	return nil
}

func (cli *commandLine) addUser(ctx context.Context, name, email, roleStr string, orgID int64, pwd string) error {
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return err
	}
	nu := user.NewUser{
		Name:     name,
		Email:    email,
		Role:     role,
		Password: pwd,
	}
	if orgID != 0 {
		nu.OrganisationID = null.Int64From(orgID)
	}
	usr, err := cli.usrSvc.CreateVerified(ctx, nu)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %d created\n", usr.ID)
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, email, pwd string) error {
	if err := cli.usrSvc.SetPassword(ctx, email, pwd); err != nil {
		return err
	}
	fmt.Fprintln(cli.out, "password updated")
	return nil
}
