package arg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"koursa/client/internal/apperror"
	userdomain "koursa/client/internal/user/domain"
)

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with your Koursa email and password. The password is read from stdin when
--password is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := c.secret(cmd, password, "Password: ")
			if err != nil {
				return err
			}
			u, err := c.app.session.Login(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", u.FullName(), strings.Join(u.RoleNames(), ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.session.Logout(cmd.Context())
			printf(cmd.OutOrStdout(), "Signed out\n")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.app.session.Snapshot()
			if !s.IsAuthenticated() {
				return errors.New("not logged in")
			}
			u := s.User
			return c.emit(cmd, u, func(w io.Writer) {
				printf(w, "ID:\t%d\n", u.ID)
				printf(w, "Name:\t%s\n", u.FullName())
				printf(w, "Email:\t%s\n", u.Email)
				printf(w, "Status:\t%s\n", u.Status)
				printf(w, "Roles:\t%s\n", strings.Join(u.RoleNames(), ", "))
				if u.RepresentedLevel != nil {
					printf(w, "Level:\t%d\n", *u.RepresentedLevel)
				}
			})
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var form userdomain.RegisterForm
	var roleName string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a Koursa account",
		Long: `Create an account. Roles are matched by name against the backend's role list;
representatives must also pass --level.
Examples:
  koursa register --email a@koursa.cm --first-name Awa --last-name Mballa --role Delegue --level 2
  koursa register --email e@koursa.cm --first-name Eric --last-name Ndjock --role Enseignant`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pw, err := c.secret(cmd, form.Password, "Password: ")
			if err != nil {
				return err
			}
			form.Password = pw
			if form.PasswordConfirm == "" {
				form.PasswordConfirm = pw
			}
			roles, err := c.app.teaching.ListRoles(ctx)
			if err != nil {
				return err
			}
			role, ok := findRole(roles, roleName)
			if !ok {
				return apperror.Validation("role", fmt.Sprintf("unknown role %q", roleName))
			}
			form.Role = role

			res, err := c.app.session.Register(ctx, form)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Authenticated {
				printf(out, "Account created, signed in as %s\n", res.User.FullName())
				return nil
			}
			printf(out, "Account created for %s; it must be activated before you can sign in\n", res.User.Email)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.Email, "email", "", "account email")
	f.StringVar(&form.Password, "password", "", "password (read from stdin when omitted)")
	f.StringVar(&form.PasswordConfirm, "password-confirm", "", "password confirmation (defaults to --password)")
	f.StringVar(&form.FirstName, "first-name", "", "first name")
	f.StringVar(&form.LastName, "last-name", "", "last name")
	f.StringVar(&roleName, "role", "", "role name (Delegue, Enseignant, ...)")
	f.Int64Var(&form.RepresentedLevel, "level", 0, "represented level id (representatives only)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.session.RefreshAccessToken(cmd.Context()); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Access token refreshed\n")
			return nil
		},
	}
}

func (c *cli) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile",
	}
	var email, first, last string
	update := &cobra.Command{
		Use:   "update",
		Short: "Update email or name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.authenticated(cmd.Context()); err != nil {
				return err
			}
			var patch userdomain.ProfilePatch
			if cmd.Flags().Changed("email") {
				patch.Email = &email
			}
			if cmd.Flags().Changed("first-name") {
				patch.FirstName = &first
			}
			if cmd.Flags().Changed("last-name") {
				patch.LastName = &last
			}
			u, err := c.app.session.UpdateProfile(cmd.Context(), patch)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Profile updated: %s <%s>\n", u.FullName(), u.Email)
			return nil
		},
	}
	update.Flags().StringVar(&email, "email", "", "new email")
	update.Flags().StringVar(&first, "first-name", "", "new first name")
	update.Flags().StringVar(&last, "last-name", "", "new last name")
	cmd.AddCommand(update)
	return cmd
}

func (c *cli) passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage your password",
	}
	var change userdomain.PasswordChange
	changeCmd := &cobra.Command{
		Use:   "change",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.authenticated(cmd.Context()); err != nil {
				return err
			}
			var err error
			if change.OldPassword, err = c.secret(cmd, change.OldPassword, "Current password: "); err != nil {
				return err
			}
			if change.NewPassword, err = c.secret(cmd, change.NewPassword, "New password: "); err != nil {
				return err
			}
			if change.Confirm == "" {
				change.Confirm = change.NewPassword
			}
			if err := c.app.session.ChangePassword(cmd.Context(), change); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Password changed\n")
			return nil
		},
	}
	changeCmd.Flags().StringVar(&change.OldPassword, "old", "", "current password")
	changeCmd.Flags().StringVar(&change.NewPassword, "new", "", "new password")
	changeCmd.Flags().StringVar(&change.Confirm, "confirm", "", "new password confirmation (defaults to --new)")
	cmd.AddCommand(changeCmd)
	return cmd
}

func (c *cli) pushTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push-token <token>",
		Short: "Register a device push notification token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.authenticated(cmd.Context()); err != nil {
				return err
			}
			if err := c.app.session.RegisterPushToken(cmd.Context(), args[0]); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Push token registered\n")
			return nil
		},
	}
}

// secret returns value, or prompts on stderr and reads one line from stdin when value is empty.
func (c *cli) secret(cmd *cobra.Command, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	if c.stdin == nil {
		c.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	printf(cmd.ErrOrStderr(), "%s", prompt)
	line, err := c.stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func findRole(roles []userdomain.Role, name string) (userdomain.Role, bool) {
	want := userdomain.NormalizeRole(name)
	for _, r := range roles {
		if userdomain.NormalizeRole(r.Name) == want {
			return r, true
		}
	}
	return userdomain.Role{}, false
}
