package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/export"
	"rollcall/internal/model"
	"rollcall/internal/qrimage"
	"rollcall/internal/store"
)

// app is the seeded engine every subcommand works against.
type app struct {
	store   *store.Memory
	svc     *attendance.Service
	reports *attendance.Reports
	loc     *time.Location
	today   time.Time
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		todayStr string
		a        app
	)
	root := &cobra.Command{
		Use:          "rollcallctl",
		Short:        "Inspect and export attendance from the demo roster",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			a.loc = cfg.Location()
			a.today = time.Now().In(a.loc)
			if todayStr != "" {
				t, err := time.ParseInLocation(model.DateLayout, todayStr, a.loc)
				if err != nil {
					return fmt.Errorf("--today: %w", err)
				}
				a.today = t
			}
			a.store = store.NewMemoryIn(a.loc)
			if err := store.Seed(a.store, a.today, a.loc); err != nil {
				return err
			}
			a.svc = attendance.NewService(a.store, cfg.LateGrace, a.loc)
			a.reports = attendance.NewReports(a.store, a.loc)
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&todayStr, "today", "", "Seed the roster around this date (YYYY-MM-DD, default today)")

	root.AddCommand(statsCmd(&a), rosterCmd(&a), exportCmd(&a), qrCmd(&a), checkCmd(&a))
	return root
}

func statsCmd(a *app) *cobra.Command {
	var studentID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a student's attendance summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ok := a.store.FindStudentByID(studentID)
			if !ok {
				return fmt.Errorf("unknown student %q", studentID)
			}
			stats := a.reports.OverallStats(st.ID)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s)\n", st.Name, st.USN)
			fmt.Fprintf(w, "overall %d%%  present %d  late %d  absent %d  total %d\n",
				stats.OverallPercentage, stats.Present, stats.Late, stats.Absent, stats.Total)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SUBJECT\tATTENDED\tTOTAL\tPERCENT")
			for _, sp := range stats.BySubject {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d%%\n", sp.Subject, sp.Present, sp.Total, sp.Percentage)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&studentID, "student", "", "Student id")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func rosterCmd(a *app) *cobra.Command {
	var subject, date string
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Print the roster of a subject on a date, absences included",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = a.today.Format(model.DateLayout)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "USN\tNAME\tSTATUS\tTIME\tMARKED BY")
			for _, row := range a.reports.RosterForSubjectOnDate(subject, date) {
				at, by := "-", "-"
				if row.Record != nil {
					at, by = row.Record.Time, row.Record.MarkedBy
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Student.USN, row.Student.Name, row.Status, at, by)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject name")
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD, default --today)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func exportCmd(a *app) *cobra.Command {
	var subject, teacherID, from, to, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a subject's attendance workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			teacher, ok := a.store.FindTeacherByID(teacherID)
			if !ok {
				return fmt.Errorf("unknown teacher %q", teacherID)
			}
			if from == "" {
				from = a.today.AddDate(0, 0, -30).Format(model.DateLayout)
			}
			if to == "" {
				to = a.today.Format(model.DateLayout)
			}
			req := export.Request{Subject: subject, Teacher: teacher.Name, From: from, To: to}
			if outPath == "" {
				outPath = req.FileName()
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := export.Write(f, req, a.reports.SubjectSheets(subject, from, to), a.loc); err != nil {
				_ = f.Close()
				_ = os.Remove(outPath)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject name")
	cmd.Flags().StringVar(&teacherID, "teacher", "T1", "Teacher id shown in the sheet header")
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD, default 30 days before --today)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD, default --today)")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (default derived from subject and range)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func qrCmd(a *app) *cobra.Command {
	var sessionID, outPath string
	var size int
	cmd := &cobra.Command{
		Use:   "qr",
		Short: "Render a session's QR token as PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.Session(sessionID)
			if err != nil {
				return err
			}
			img, err := qrimage.PNG(s.QRCode, size)
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = s.ID + ".png"
			}
			if err := os.WriteFile(outPath, img, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", s.QRCode, outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	cmd.Flags().StringVar(&outPath, "out", "", "Output PNG (default <session>.png)")
	cmd.Flags().IntVar(&size, "size", qrimage.DefaultSize, "Edge length in pixels")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func checkCmd(a *app) *cobra.Command {
	var sessionID, studentID, clock string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a student's eligibility for a session at a time of day",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc.Session(sessionID)
			if err != nil {
				return err
			}
			st, ok := a.store.FindStudentByID(studentID)
			if !ok {
				return fmt.Errorf("unknown student %q", studentID)
			}
			now := time.Now().In(a.loc)
			if clock != "" {
				now, err = time.ParseInLocation(model.DateLayout+" "+model.ClockLayout, s.Date+" "+clock, a.loc)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			outcome := a.svc.CheckEligibility(s, st, now)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: validity=%s eligibility=%s", s.ID, st.ID, a.svc.EvaluateSessionValidity(s, now), outcome)
			if outcome == attendance.Eligible {
				fmt.Fprintf(cmd.OutOrStdout(), " status=%s", a.svc.StatusAt(s, now))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id")
	cmd.Flags().StringVar(&studentID, "student", "", "Student id")
	cmd.Flags().StringVar(&clock, "at", "", "Time of day on the session date (HH:MM, default now)")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}
