package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/kartikbazzad/bunbase/tabsync/internal/config"
	"github.com/kartikbazzad/bunbase/tabsync/internal/engine"
	"github.com/kartikbazzad/bunbase/tabsync/internal/notify"
	"github.com/kartikbazzad/bunbase/tabsync/internal/queue"
	"github.com/kartikbazzad/bunbase/tabsync/internal/session"
)

const prompt = "tabsync> "

var shellCommands = []string{".help", ".state", ".watch", ".refresh", ".patients", ".exit"}

func main() {
	cfgPath := flag.String("config", "", "Path to config file (optional)")
	dataDir := flag.String("data-dir", "", "Shared data directory (overrides config)")
	socketPath := flag.String("socket", "", "Hub unix socket path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *socketPath != "" {
		cfg.Broadcast.SocketPath = *socketPath
	}

	fmt.Printf("Tabsync Shell v0\n")
	fmt.Printf("Attaching to %s...\n", cfg.DatabasePath())

	sess, err := session.Initialize(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Cleanup()

	fmt.Printf("Attached (state=%s origin=%s). Type '.help' for commands.\n\n", sess.State(), sess.Origin())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted. Exiting...")
		sess.Cleanup()
		os.Exit(0)
	}()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(l string) (c []string) {
		for _, cmd := range shellCommands {
			if strings.HasPrefix(cmd, strings.ToLower(l)) {
				c = append(c, cmd)
			}
		}
		return
	})

	var watching func()
	defer func() {
		if watching != nil {
			watching()
		}
	}()

	for {
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				return
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			continue
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, ".") {
			if runCommand(sess, input, &watching) {
				return
			}
			continue
		}

		rs, err := sess.ExecuteQuery(context.Background(), input, nil, queue.Options{})
		if err != nil {
			fmt.Println("ERROR")
			fmt.Println(err.Error())
			fmt.Println()
			continue
		}
		printResult(rs)
		fmt.Println()
	}
}

// runCommand handles dot-commands and reports whether the shell should exit.
func runCommand(sess *session.Session, input string, watching *func()) bool {
	switch strings.ToLower(input) {
	case ".help":
		fmt.Println("Commands:")
		fmt.Println("  .state     show the connection state")
		fmt.Println("  .watch     toggle printing of change notifications")
		fmt.Println("  .refresh   ask local listeners to re-fetch")
		fmt.Println("  .patients  create the patients table if missing")
		fmt.Println("  .exit      leave the shell")
		fmt.Println("Anything else is executed as SQL.")
	case ".state":
		fmt.Printf("state: %s\n", sess.State())
	case ".watch":
		if *watching != nil {
			(*watching)()
			*watching = nil
			fmt.Println("watch: off")
			break
		}
		*watching = sess.OnDatabaseUpdate(func(u notify.Update) {
			fmt.Printf("\n[%s] %s %s (origin=%s)\n%s", u.Transport, u.Action, u.Table, u.Origin, prompt)
		})
		fmt.Println("watch: on")
	case ".refresh":
		sess.TriggerRefresh()
		fmt.Println("refresh dispatched")
	case ".patients":
		if sess.InitializePatientTable(context.Background()) {
			fmt.Println("patients table ready")
		} else {
			fmt.Println("patients table initialization failed, see log")
		}
	case ".exit", ".quit":
		return true
	default:
		fmt.Printf("Unknown command %q. Type '.help'.\n", input)
	}
	fmt.Println()
	return false
}

func printResult(rs *engine.ResultSet) {
	if len(rs.Columns) == 0 {
		fmt.Printf("OK (%d row(s) affected)\n", rs.RowsAffected)
		return
	}

	fmt.Println(strings.Join(rs.Columns, " | "))
	for _, row := range rs.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			parts[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(parts, " | "))
	}
	fmt.Printf("(%d row(s))\n", len(rs.Rows))
}
