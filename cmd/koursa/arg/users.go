package arg

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	userdomain "koursa/client/internal/user/domain"
)

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts and activate or deactivate them (administrators and department heads)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return c.app.authenticated(cmd.Context())
		},
	}
	cmd.AddCommand(
		c.usersListCmd(),
		c.usersStatusCmd("activate", "Activate a pending or inactive account", true),
		c.usersStatusCmd("deactivate", "Deactivate an active account", false),
	)
	return cmd
}

func (c *cli) usersListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var want userdomain.AccountStatus
			if status != "" {
				st, err := userdomain.ParseAccountStatus(status)
				if err != nil {
					return err
				}
				want = st
			}
			users, err := c.app.users.List(cmd.Context(), want)
			if err != nil {
				return err
			}
			return c.emit(cmd, users, func(w io.Writer) {
				printf(w, "ID\tNAME\tEMAIL\tSTATUS\tROLES\n")
				for i := range users {
					u := &users[i]
					printf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.FullName(), u.Email, u.Status.Label(), strings.Join(u.RoleNames(), ", "))
				}
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only accounts in this status: pending, active or inactive")
	return cmd
}

func (c *cli) usersStatusCmd(use, short string, activate bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := userID(args[0])
			if err != nil {
				return err
			}
			op := c.app.users.Deactivate
			if activate {
				op = c.app.users.Activate
			}
			u, err := op(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.emit(cmd, u, func(w io.Writer) {
				printf(w, "%s (%s) is now %s.\n", u.FullName(), u.Email, u.Status.Label())
			})
		},
	}
}

func userID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}
