package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"time"

	"rollcall/internal/device"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	out     io.Writer
	room    classroom
	tracker *device.Tracker
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  session                 - print the current session id")
	fmt.Fprintln(cli.out, "  list                    - list students marked present")
	fmt.Fprintln(cli.out, "  submit -name NAME       - mark NAME present, once per device per session")
	fmt.Fprintln(cli.out, "  remove -name NAME       - remove NAME from attendance")
	fmt.Fprintln(cli.out, "  reset                   - clear attendance and start a new session")
	fmt.Fprintln(cli.out, "  roster [-q QUERY]       - list or search enrolled students")
	fmt.Fprintln(cli.out, "  enroll -name NAME       - add NAME to the roster")
	fmt.Fprintln(cli.out, "  unenroll -name NAME     - delete NAME from the roster and attendance")
}

// nameFlag parses "-name" for subcommands that need exactly one student.
func (cli *commandLine) nameFlag(cmd string, args []string) (string, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	name := fs.String("name", "", "The student's name as it appears on the roster.")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *name == "" {
		fs.Usage()
		return "", errHelp
	}
	return *name, nil
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 1 {
		cli.printUsage()
		return errHelp
	}

	switch args[0] {
	case "session":
		sid, err := cli.room.CurrentSession(ctx)
		if err != nil {
			return err
		}
		f, err := cli.tracker.Sync(ctx, sid)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "session %s (submitted from this device: %v)\n", sid, f.Submitted)
		return nil

	case "list":
		sid, present, err := cli.room.Present(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(present))
		for n := range present {
			names = append(names, n)
		}
		sort.Slice(names, func(i, j int) bool { return present[names[i]].Before(present[names[j]]) })
		fmt.Fprintf(cli.out, "session %s: %d present\n", sid, len(names))
		for _, n := range names {
			fmt.Fprintf(cli.out, "  %s\t%s\n", n, present[n].Local().Format(time.DateTime))
		}
		return nil

	case "submit":
		name, err := cli.nameFlag("submit", args[1:])
		if err != nil {
			return err
		}
		sid, err := cli.tracker.Submit(ctx, cli.room, name)
		if errors.Is(err, device.ErrFlagNotSaved) {
			fmt.Fprintf(cli.out, "warning: %v\n", err)
		} else if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "attendance recorded for %s in session %s\n", name, sid)
		return nil

	case "remove":
		name, err := cli.nameFlag("remove", args[1:])
		if err != nil {
			return err
		}
		if err := cli.room.Remove(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s removed from attendance\n", name)
		return nil

	case "reset":
		sid, err := cli.room.Reset(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "all attendance cleared, session %s started\n", sid)
		return nil

	case "roster":
		fs := flag.NewFlagSet("roster", flag.ContinueOnError)
		fs.SetOutput(cli.out)
		query := fs.String("q", "", "Case-insensitive substring to filter by.")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		names, err := cli.room.Students(ctx, *query)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cli.out, n)
		}
		return nil

	case "enroll":
		name, err := cli.nameFlag("enroll", args[1:])
		if err != nil {
			return err
		}
		stored, err := cli.room.AddStudent(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s added to the roster\n", stored)
		return nil

	case "unenroll":
		name, err := cli.nameFlag("unenroll", args[1:])
		if err != nil {
			return err
		}
		if err := cli.room.RemoveStudent(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s deleted from the roster\n", name)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}
