package arg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"koursa/client/internal/apperror"
	"koursa/client/internal/config"
)

// cli carries the state shared by every subcommand of one invocation.
type cli struct {
	app     *app
	jsonOut bool
	stdin   *bufio.Reader
	// load builds the app; replaced in tests.
	load func(ctx context.Context) (*app, error)
}

// NewRootCmd returns the koursa command tree configured from the environment.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newCLI())
}

func newCLI() *cli {
	return &cli{load: func(ctx context.Context) (*app, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return newApp(ctx, cfg)
	}}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "koursa",
		Short: "koursa is the command line client for the Koursa academic tracking API",
		Long: `koursa signs you in to Koursa and drives the lesson fiche workflow:
class representatives submit fiches, instructors validate or refuse them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.load(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.registerCmd(),
		c.refreshCmd(),
		c.profileCmd(),
		c.passwordCmd(),
		c.pushTokenCmd(),
		c.fichesCmd(),
		c.unitsCmd(),
		c.academicCmd(),
		c.statsCmd(),
		c.archiveCmd(),
		c.usersCmd(),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute() {
	c := newCLI()
	if err := run(context.Background(), c, newRootCmd(c), os.Args[1:], os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes root and then releases whatever app the invocation built, whether or not the
// command succeeded.
func run(ctx context.Context, c *cli, root *cobra.Command, args []string, stderr io.Writer) error {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if c.app != nil {
		if cerr := c.app.close(context.Background()); cerr != nil {
			log.Printf("koursa: close: %v", cerr)
		}
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", describe(err))
	}
	return err
}

// describe renders err for the terminal: the user-facing message for classified failures, the
// raw error otherwise.
func describe(err error) string {
	var e *apperror.Error
	if errors.As(err, &e) {
		if e.Field != "" && e.Kind == apperror.KindValidation {
			return e.Field + ": " + e.Message
		}
		return e.Message
	}
	return err.Error()
}
