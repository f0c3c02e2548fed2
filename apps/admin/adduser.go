package main

import (
	"context"
	"fmt"

	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/user"
)

func (cli *commandLine) addSchool(slug, name string) error {
	ns := school.NewSchool{Slug: slug, Name: name}
	if err := ns.Validate(cli.validate); err != nil {
		return err
	}
	sch, err := cli.schSvc.Create(context.Background(), ns)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "school %q added: /%s\n", sch.Name, sch.Slug)
	return nil
}

// addUser creates a user.User in the school identified by slug.
func (cli *commandLine) addUser(slug, role, name, email string) error {
	ctx := context.Background()

	sch, err := cli.schSvc.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	nu := user.NewUser{SchoolID: sch.ID, Name: name, Email: email, Role: role}
	if err = nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "%s %q added to %s\n", usr.Role, usr.Email, sch.Slug)
	if usr.AccessCode != "" {
		fmt.Fprintf(cli.out, "access code: %s\n", usr.AccessCode)
	}
	return nil
}

func (cli *commandLine) regenCode(email string) error {
	ctx := context.Background()

	usr, err := cli.usrSvc.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if usr, err = cli.usrSvc.RegenerateCode(ctx, usr.ID); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "new access code: %s\n", usr.AccessCode)
	return nil
}
