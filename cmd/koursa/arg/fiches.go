package arg

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"koursa/client/internal/apperror"
	"koursa/client/internal/fiche/domain"
)

func (c *cli) fichesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fiches",
		Aliases: []string{"fiche"},
		Short:   "List, submit and review lesson fiches",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return c.app.authenticated(cmd.Context())
		},
	}
	cmd.AddCommand(
		c.fichesListCmd(),
		c.fichesPendingCmd(),
		c.fichesShowCmd(),
		c.fichesCreateCmd(),
		c.fichesValidateCmd(),
		c.fichesRefuseCmd(),
		c.fichesResubmitCmd(),
	)
	return cmd
}

func (c *cli) fichesListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the fiches visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fiches, err := c.app.fiches.List(cmd.Context())
			if err != nil {
				return err
			}
			if status != "" {
				want := domain.Status(strings.ToUpper(status))
				kept := fiches[:0]
				for _, f := range fiches {
					if f.Status == want || f.Status.Label() == strings.ToLower(status) {
						kept = append(kept, f)
					}
				}
				fiches = kept
			}
			return c.printFiches(cmd, fiches)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only show fiches in this status (submitted, validated, refused)")
	return cmd
}

func (c *cli) fichesPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List fiches awaiting your validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fiches, err := c.app.fiches.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			return c.printFiches(cmd, fiches)
		},
	}
}

func (c *cli) fichesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one fiche and the actions you may take on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ficheID(args[0])
			if err != nil {
				return err
			}
			f, err := c.app.fiches.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			actions, err := c.app.fiches.AllowedActions(cmd.Context(), f)
			if err != nil {
				return err
			}
			view := struct {
				*domain.Fiche
				Actions []string `json:"actions"`
			}{f, actionNames(actions.Validate, actions.Refuse, actions.Resubmit)}
			return c.emit(cmd, view, func(w io.Writer) {
				printf(w, "Fiche:\t#%d\n", f.ID)
				printf(w, "Status:\t%s\n", f.Status.Label())
				printf(w, "Unit:\t%s\n", unitName(f))
				printf(w, "Date:\t%s %s-%s (%.2fh)\n", f.Date, domain.ClockTime(f.StartTime), domain.ClockTime(f.EndTime), f.Hours())
				printf(w, "Room:\t%s\n", f.Room)
				printf(w, "Type:\t%s\n", f.SessionType)
				printf(w, "Chapter:\t%s\n", f.ChapterTitle)
				printf(w, "Content:\t%s\n", f.Content)
				printf(w, "Representative:\t%s\n", f.Representative)
				printf(w, "Instructor:\t%s\n", f.Instructor)
				if f.RefusalReason != "" {
					printf(w, "Refusal reason:\t%s\n", f.RefusalReason)
				}
				if f.SupersedesID != nil {
					printf(w, "Resubmits:\t#%d\n", *f.SupersedesID)
				}
				if len(view.Actions) > 0 {
					printf(w, "Actions:\t%s\n", strings.Join(view.Actions, ", "))
				}
			})
		},
	}
}

func (c *cli) fichesCreateCmd() *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a lesson fiche",
		Long: `Submit a fiche for a lesson you attended as class representative.
Example:
  koursa fiches create --unit 1 --date 2024-03-05 --start 08:00 --end 10:00 \
    --room "Amphi 250" --type CM --chapter "Graphes" --content "Parcours en largeur"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var input domain.Input
			if err := in.apply(cmd.Flags(), &input); err != nil {
				return err
			}
			f, err := c.app.fiches.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			return c.emit(cmd, f, func(w io.Writer) {
				printf(w, "Fiche #%d submitted for %s\n", f.ID, unitName(f))
			})
		},
	}
	in.register(cmd.Flags())
	return cmd
}

func (c *cli) fichesValidateCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "validate <id>",
		Short: "Validate a submitted fiche (instructor only; asks for your password)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ficheID(args[0])
			if err != nil {
				return err
			}
			pw, err := c.secret(cmd, password, "Password: ")
			if err != nil {
				return err
			}
			f, err := c.app.fiches.Validate(cmd.Context(), id, pw)
			if err != nil {
				return err
			}
			return c.emit(cmd, f, func(w io.Writer) {
				printf(w, "Fiche #%d validated\n", f.ID)
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "your password (read from stdin when omitted)")
	return cmd
}

func (c *cli) fichesRefuseCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "refuse <id>",
		Short: "Refuse a submitted fiche (instructor only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ficheID(args[0])
			if err != nil {
				return err
			}
			f, err := c.app.fiches.Refuse(cmd.Context(), id, reason)
			if err != nil {
				return err
			}
			return c.emit(cmd, f, func(w io.Writer) {
				printf(w, "Fiche #%d refused: %s\n", f.ID, f.RefusalReason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "refusal reason shown to the representative")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (c *cli) fichesResubmitCmd() *cobra.Command {
	var in inputFlags
	cmd := &cobra.Command{
		Use:   "resubmit <id>",
		Short: "Submit a corrected copy of a refused fiche",
		Long: `Submit a new fiche replacing a refused one. Fields default to the refused fiche's
values; pass only the flags you want to correct.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ficheID(args[0])
			if err != nil {
				return err
			}
			prev, err := c.app.fiches.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			input := domain.FromFiche(prev)
			if err := in.apply(cmd.Flags(), &input); err != nil {
				return err
			}
			f, err := c.app.fiches.Resubmit(cmd.Context(), id, input)
			if err != nil {
				return err
			}
			return c.emit(cmd, f, func(w io.Writer) {
				printf(w, "Fiche #%d submitted, replacing #%d\n", f.ID, id)
			})
		},
	}
	in.register(cmd.Flags())
	return cmd
}

func (c *cli) printFiches(cmd *cobra.Command, fiches []domain.Fiche) error {
	return c.emit(cmd, fiches, func(w io.Writer) {
		if len(fiches) == 0 {
			printf(w, "No fiches\n")
			return
		}
		printf(w, "ID\tDATE\tTIME\tUNIT\tTYPE\tSTATUS\n")
		for i := range fiches {
			f := &fiches[i]
			printf(w, "%d\t%s\t%s-%s\t%s\t%s\t%s\n", f.ID, f.Date, domain.ClockTime(f.StartTime),
				domain.ClockTime(f.EndTime), unitName(f), f.SessionType, f.Status.Label())
		}
	})
}

// inputFlags binds the editable fiche fields to flags.
type inputFlags struct {
	unit                   int64
	date, start, end, room string
	sessionType            string
	chapter, content       string
}

func (in *inputFlags) register(f *pflag.FlagSet) {
	f.Int64Var(&in.unit, "unit", 0, "teaching unit id")
	f.StringVar(&in.date, "date", "", "lesson date (YYYY-MM-DD)")
	f.StringVar(&in.start, "start", "", "start time (HH:MM)")
	f.StringVar(&in.end, "end", "", "end time (HH:MM)")
	f.StringVar(&in.room, "room", "", "room")
	f.StringVar(&in.sessionType, "type", "", "session type: CM, TD or TP")
	f.StringVar(&in.chapter, "chapter", "", "chapter title")
	f.StringVar(&in.content, "content", "", "content covered")
}

// apply copies the flags that were set onto dst; unset flags leave dst unchanged.
func (in *inputFlags) apply(f *pflag.FlagSet, dst *domain.Input) error {
	if f.Changed("unit") {
		dst.UnitID = in.unit
	}
	if f.Changed("date") {
		dst.Date = in.date
	}
	if f.Changed("start") {
		dst.StartTime = in.start
	}
	if f.Changed("end") {
		dst.EndTime = in.end
	}
	if f.Changed("room") {
		dst.Room = in.room
	}
	if f.Changed("type") {
		t, err := domain.ParseSessionType(in.sessionType)
		if err != nil {
			return apperror.Validation("type_seance", err.Error())
		}
		dst.SessionType = t
	}
	if f.Changed("chapter") {
		dst.ChapterTitle = in.chapter
	}
	if f.Changed("content") {
		dst.Content = in.content
	}
	return nil
}

func ficheID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid fiche id %q", s)
	}
	return id, nil
}

func unitName(f *domain.Fiche) string {
	if f.UnitName != "" {
		return f.UnitName
	}
	return "UE " + strconv.FormatInt(f.UnitID, 10)
}

func actionNames(validate, refuse, resubmit bool) []string {
	var out []string
	if validate {
		out = append(out, "validate")
	}
	if refuse {
		out = append(out, "refuse")
	}
	if resubmit {
		out = append(out, "resubmit")
	}
	return out
}
