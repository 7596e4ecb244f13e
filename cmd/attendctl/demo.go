package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"uniattend/internal/attendance"
	"uniattend/internal/auth"
	"uniattend/internal/logging"
	"uniattend/internal/model"
	"uniattend/internal/registry"
	"uniattend/internal/store"
	"uniattend/internal/system"
)

var demoFlags struct {
	backend string
	path    string
	strict  bool
	policy  string
	verbose bool
}

// demoCmd seeds a store and narrates a day of attendance.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Seed demo data and walk through a typical day",
	Long: `Seed one instructor, two students and two courses, then log in,
mark attendance and print what each step did. With --verbose every
persistence call is logged too.`,
	RunE: runDemoCmd,
}

func init() {
	f := demoCmd.Flags()
	f.StringVar(&demoFlags.backend, "store", "memory", "store backend: memory, sqlite or bolt")
	f.StringVar(&demoFlags.path, "path", "", "database file for sqlite or bolt (default data/attendctl-demo.<backend>)")
	f.BoolVar(&demoFlags.strict, "strict", false, "validate user and course references")
	f.StringVar(&demoFlags.policy, "policy", "append", "duplicate marking policy: append or one-per-day")
	f.BoolVarP(&demoFlags.verbose, "verbose", "v", false, "log persistence calls")
}

func runDemoCmd(cmd *cobra.Command, _ []string) error {
	log, err := logging.Console(demoFlags.verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	policy, err := attendance.ParsePolicy(demoFlags.policy)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	path := demoStorePath(demoFlags.backend, demoFlags.path)
	st, err := store.Open(ctx, store.Options{
		Backend:    demoFlags.backend,
		SQLitePath: path,
		BoltPath:   path,
	})
	if err != nil {
		return err
	}
	sys := system.New(system.Deps{
		Store:  store.WithLogging(st, log),
		Signer: auth.NewSigner("attendctl", "attendctl-demo", time.Hour),
		Policy: policy,
		Strict: demoFlags.strict,
		Log:    log,
	})
	defer sys.Close()

	return runDemo(ctx, cmd.OutOrStdout(), sys, time.Now())
}

// demoStorePath returns path, or a per-backend file under data/ when it is empty.
func demoStorePath(backend, path string) string {
	if path != "" {
		return path
	}
	switch backend {
	case "sqlite", "bolt":
		return filepath.Join("data", "attendctl-demo."+backend)
	}
	return ""
}

// runDemo seeds sys and exercises the main operations, printing one line per step.
func runDemo(ctx context.Context, out io.Writer, sys *system.System, now time.Time) error {
	say := func(format string, args ...any) { fmt.Fprintf(out, format+"\n", args...) }

	seeded, err := sys.Seed(ctx, now)
	if err != nil {
		return err
	}
	if seeded {
		say("Seeded demo data: profsmith, johndoe, janesmith; CS101 and MA201.")
	} else {
		say("Store already has users; seeding skipped.")
	}

	student, err := sys.Sessions().Login(ctx, "johndoe", "pass123")
	if err != nil {
		return fmt.Errorf("student login: %w", err)
	}
	say("User logged in: %s (%s)", student.User.Username, student.User.Role)
	courses, err := sys.Courses().CoursesByStudent(ctx, student.User.ID)
	if err != nil {
		return err
	}
	for _, c := range courses {
		say("  enrolled in %s %s", c.Code, c.Name)
	}

	prof, err := sys.Sessions().Login(ctx, "smith@university.edu", "pass123")
	if err != nil {
		return fmt.Errorf("instructor login: %w", err)
	}
	say("User logged in: %s (%s)", prof.User.Username, prof.User.Role)

	cs, err := sys.Courses().ByCode(ctx, "CS101")
	if err != nil {
		return err
	}
	rec, err := sys.Ledger().Mark(ctx, attendance.MarkInput{
		CourseID: cs.ID, StudentID: student.User.ID, Date: now, TimeMarked: now, Present: true,
	})
	switch {
	case errors.Is(err, model.ErrDuplicateMarking):
		say("Attendance already marked today for %s in %s.", student.User.Username, cs.Code)
	case err != nil:
		return err
	default:
		say("Attendance marked: %s", rec)
	}

	recs, err := sys.Ledger().RecordsForCourse(ctx, cs.ID)
	if err != nil {
		return err
	}
	say("%s has %d attendance records:", cs.Code, len(recs))
	for _, r := range recs {
		say("  %s", r)
	}
	sum, err := sys.Ledger().Summary(ctx, cs.ID)
	if err != nil {
		return err
	}
	for _, s := range sum {
		u, err := sys.Users().Lookup(ctx, s.StudentID)
		name := s.StudentID
		if err == nil {
			name = u.Username
		}
		say("  %-10s attended %d of %d (%.0f%%)", name, s.Attended, s.Total, s.Rate*100)
	}

	_, err = sys.Users().Register(ctx, registry.RegisterInput{
		Username: "johndoe", Email: "another@student.edu", Password: "pass123", Role: model.RoleStudent,
	})
	if errors.Is(err, model.ErrDuplicateIdentity) {
		say("Registration rejected: username johndoe is taken.")
	} else if err != nil {
		return err
	}
	n, err := sys.Users().Count(ctx)
	if err != nil {
		return err
	}
	say("Registered users: %d", n)

	for _, g := range []struct{ name, id string }{{student.User.Username, student.Session.ID}, {prof.User.Username, prof.Session.ID}} {
		if err := sys.Sessions().Logout(ctx, g.id); err != nil {
			return err
		}
		say("User logged out: %s", g.name)
	}
	return nil
}
