// Package useradmin creates accounts from the terminal. It is used to
// bootstrap the first administrator before anyone can log in to the API.
package useradmin

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/emes-auth/internal/flagx"
	"github.com/dmitrijs2005/emes-auth/internal/server/models"
	"github.com/dmitrijs2005/emes-auth/internal/server/services"
)

// Actor is recorded as created_by for accounts made with this tool.
const Actor = "useradmin"

var errPasswordMismatch = errors.New("passwords do not match")

type Options struct {
	Username    string
	Email       string
	DisplayName string
	Department  string
	Roles       []string
}

// Creator is the account creation the tool drives.
type Creator interface {
	Create(ctx context.Context, actor string, in services.CreateUserInput) (*models.Account, error)
}

// ParseOptions reads -username, -email, -name, -department and -roles (comma
// separated) from args. Server configuration flags are ignored.
func ParseOptions(args []string) (Options, error) {
	allowed := []string{}
	for _, n := range []string{"username", "email", "name", "department", "roles"} {
		allowed = append(allowed, "-"+n, "--"+n)
	}

	var opts Options
	var roles string

	fs := flag.NewFlagSet("useradmin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.Username, "username", "", "login name")
	fs.StringVar(&opts.Email, "email", "", "email address")
	fs.StringVar(&opts.DisplayName, "name", "", "display name")
	fs.StringVar(&opts.Department, "department", "", "department")
	fs.StringVar(&roles, "roles", "", "comma separated role codes")

	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return Options{}, err
	}

	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			opts.Roles = append(opts.Roles, strings.ToUpper(r))
		}
	}
	return opts, nil
}

// Run asks for whatever opts is missing, reads the password twice from the
// terminal fd and creates the account.
func Run(ctx context.Context, c Creator, opts Options, in io.Reader, out io.Writer, fd int) (*models.Account, error) {
	reader := bufio.NewReader(in)

	var err error
	if opts.Username == "" {
		if opts.Username, err = promptLine(reader, "Username", out); err != nil {
			return nil, err
		}
	}
	if opts.Email == "" {
		if opts.Email, err = promptLine(reader, "Email", out); err != nil {
			return nil, err
		}
	}
	if opts.DisplayName == "" {
		opts.DisplayName = opts.Username
	}

	pw, err := promptPassword(out, fd, "Password")
	if err != nil {
		return nil, err
	}
	defer wipe(pw)

	confirm, err := promptPassword(out, fd, "Repeat password")
	if err != nil {
		return nil, err
	}
	defer wipe(confirm)

	if !bytes.Equal(pw, confirm) {
		return nil, errPasswordMismatch
	}

	a, err := c.Create(ctx, Actor, services.CreateUserInput{
		Username:    opts.Username,
		Password:    string(pw),
		Email:       opts.Email,
		DisplayName: opts.DisplayName,
		Department:  opts.Department,
		Roles:       opts.Roles,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(out, "created user %s (id %d)\n", a.Username, a.ID)
	return a, nil
}
