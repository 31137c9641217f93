package arg

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) unitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List teaching units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.authenticated(cmd.Context()); err != nil {
				return err
			}
			units, err := c.app.teaching.ListUnits(cmd.Context())
			if err != nil {
				return err
			}
			return c.emit(cmd, units, func(w io.Writer) {
				printf(w, "ID\tCODE\tLABEL\tSEMESTER\n")
				for _, u := range units {
					printf(w, "%d\t%s\t%s\t%d\n", u.ID, u.Code, u.Label, u.Semester)
				}
			})
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show this month's dashboard figures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.authenticated(cmd.Context()); err != nil {
				return err
			}
			st, err := c.app.teaching.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return c.emit(cmd, st, func(w io.Writer) {
				printf(w, "Validated hours this month:\t%.2f\n", st.ValidatedHoursThisMonth)
				printf(w, "Overdue validations:\t%d\n", st.OverdueValidations)
				if len(st.HoursByUnitThisMonth) == 0 {
					return
				}
				printf(w, "\nCODE\tLABEL\tHOURS\n")
				for _, h := range st.HoursByUnitThisMonth {
					printf(w, "%s\t%s\t%.2f\n", h.Code, strings.TrimSpace(h.Label), h.Hours)
				}
			})
		},
	}
}

func (c *cli) academicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "academic",
		Short: "Browse faculties, departments and tracks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return c.app.authenticated(cmd.Context())
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "faculties",
			Short: "List faculties",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := c.app.teaching.ListFaculties(cmd.Context())
				if err != nil {
					return err
				}
				return c.emit(cmd, list, func(w io.Writer) {
					printf(w, "ID\tNAME\n")
					for _, f := range list {
						printf(w, "%d\t%s\n", f.ID, f.Name)
					}
				})
			},
		},
		&cobra.Command{
			Use:   "departments",
			Short: "List departments and their heads",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := c.app.teaching.ListDepartments(cmd.Context())
				if err != nil {
					return err
				}
				return c.emit(cmd, list, func(w io.Writer) {
					printf(w, "ID\tNAME\tFACULTY\tHEAD\n")
					for _, d := range list {
						head := d.HeadName
						if head == "" {
							head = "-"
						}
						printf(w, "%d\t%s\t%s\t%s\n", d.ID, d.Name, d.FacultyName, head)
					}
				})
			},
		},
		&cobra.Command{
			Use:     "tracks",
			Aliases: []string{"filieres"},
			Short:   "List tracks (filieres)",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				list, err := c.app.teaching.ListTracks(cmd.Context())
				if err != nil {
					return err
				}
				return c.emit(cmd, list, func(w io.Writer) {
					printf(w, "ID\tNAME\tDEPARTMENT\n")
					for _, t := range list {
						printf(w, "%d\t%s\t%s\n", t.ID, t.Name, t.DepartmentName)
					}
				})
			},
		},
	)
	return cmd
}
