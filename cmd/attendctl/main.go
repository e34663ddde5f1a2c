// Command attendctl submits and manages attendance from a terminal, either
// against a rollcall server or entirely on this device.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"rollcall/internal/attendance"
	"rollcall/internal/client"
	"rollcall/internal/device"
	"rollcall/internal/store"
)

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "attendctl.db"
	}
	return filepath.Join(home, ".attendctl.db")
}

func main() {
	fs := flag.NewFlagSet("attendctl", flag.ExitOnError)
	server := fs.String("server", os.Getenv("ROLLCALL_SERVER"), "Base URL of the rollcall server, e.g. http://192.168.1.20:3000.")
	statePath := fs.String("state", defaultStatePath(), "Device state file. Without -server it also holds the attendance store.")
	passcode := fs.String("passcode", os.Getenv("ROLLCALL_PASSCODE"), "Faculty passcode for reset, remove and roster changes.")
	_ = fs.Parse(os.Args[1:])

	if err := run(context.Background(), *server, *statePath, *passcode, fs.Args()); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, server, statePath, passcode string, args []string) error {
	state, err := store.NewBolt(statePath)
	if err != nil {
		return err
	}
	defer state.Close()

	cli := &commandLine{out: os.Stdout, tracker: device.NewTracker(state)}
	if server != "" {
		c := client.New(server)
		if passcode != "" {
			if err := c.Login(ctx, passcode); err != nil {
				return fmt.Errorf("faculty login: %w", err)
			}
		}
		cli.room = remote{c}
	} else {
		s, err := attendance.Open(ctx, state, attendance.Options{})
		if err != nil {
			return err
		}
		cli.room = newLocal(s)
	}
	return cli.run(ctx, args)
}
