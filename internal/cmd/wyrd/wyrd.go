// Package wyrd parses the engine command's flags and runs the interactive
// session shell.
package wyrd

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/wyrdlabs/wyrd/internal/engine/session"
	entrypoint "github.com/wyrdlabs/wyrd/internal/platform/cmd"
	"github.com/wyrdlabs/wyrd/internal/storage/sqlite"
	"github.com/wyrdlabs/wyrd/internal/telemetry"
)

// Config holds wyrd command configuration.
type Config struct {
	DBPath string `env:"WYRD_DB_PATH" envDefault:"wyrd.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the session database")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the session store and starts the interactive shell on
// standard input and output.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWyrd, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		manager, err := session.NewManager(session.Config{
			Checkpoints: store,
			Chronicle:   store,
			Metadata:    store,
			Telemetry:   telemetry.NewEmitter(store),
		})
		if err != nil {
			return err
		}
		return RunShell(ctx, manager, in, out)
	})
}

// RunShell drives the menu and play loops until the input ends or the
// player quits from the menu.
func RunShell(ctx context.Context, manager *session.Manager, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "wyrd: a tale awaits. Commands: new <title>, list, resume <id>, quit")
	for {
		fmt.Fprint(out, "> ")
		line, ok := readLine(ctx, scanner)
		if !ok {
			return scanner.Err()
		}

		command, rest := splitCommand(line)
		switch command {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(out, "Farewell.")
			return nil
		case "list":
			if err := printSessions(ctx, manager, out); err != nil {
				return err
			}
		case "new":
			view, err := createSession(ctx, manager, scanner, out, rest)
			if err != nil {
				if errors.Is(err, session.ErrTitleRequired) || errors.Is(err, errInputEnded) {
					fmt.Fprintln(out, "Session needs a title: new <title>")
					continue
				}
				return err
			}
			if err := play(ctx, manager, scanner, out, view); err != nil {
				return err
			}
		case "resume":
			view, err := manager.ResumeSession(ctx, strings.TrimSpace(rest))
			if err != nil {
				if errors.Is(err, session.ErrNotFound) {
					fmt.Fprintf(out, "No session %q. Use list to see saved sessions.\n", strings.TrimSpace(rest))
					continue
				}
				return err
			}
			if err := play(ctx, manager, scanner, out, view); err != nil {
				return err
			}
		default:
			fmt.Fprintf(out, "Unknown command %q.\n", command)
		}
	}
}

var errInputEnded = errors.New("input ended")

func createSession(ctx context.Context, manager *session.Manager, scanner *bufio.Scanner, out io.Writer, title string) (session.View, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return session.View{}, session.ErrTitleRequired
	}

	fmt.Fprint(out, "Premise: ")
	premise, ok := readLine(ctx, scanner)
	if !ok {
		return session.View{}, errInputEnded
	}

	fmt.Fprint(out, "Party concepts (comma separated): ")
	conceptLine, ok := readLine(ctx, scanner)
	if !ok {
		return session.View{}, errInputEnded
	}
	var concepts []string
	for _, concept := range strings.Split(conceptLine, ",") {
		if concept = strings.TrimSpace(concept); concept != "" {
			concepts = append(concepts, concept)
		}
	}

	return manager.NewSession(ctx, session.NewSessionRequest{
		Title:    title,
		Premise:  strings.TrimSpace(premise),
		Concepts: concepts,
	})
}

func play(ctx context.Context, manager *session.Manager, scanner *bufio.Scanner, out io.Writer, view session.View) error {
	fmt.Fprintf(out, "\n== %s (turn %d) ==\n", view.Title, view.TurnNumber)
	fmt.Fprintln(out, view.Narration)
	if len(view.Players) > 0 {
		names := make([]string, len(view.Players))
		for i, player := range view.Players {
			names[i] = fmt.Sprintf("%s the %s", player.Name, player.Class)
		}
		fmt.Fprintf(out, "Party: %s\n", strings.Join(names, ", "))
	}

	performer := ""
	if len(view.Players) > 0 {
		performer = view.Players[0].ID
	}

	for {
		fmt.Fprint(out, "\nWhat do you do? ")
		input, ok := readLine(ctx, scanner)
		if !ok {
			return scanner.Err()
		}
		if strings.TrimSpace(input) == "" {
			continue
		}

		result, err := manager.ExecuteTurn(ctx, view.SessionID, performer, input)
		if err != nil {
			if errors.Is(err, session.ErrCompleted) {
				fmt.Fprintln(out, "This session is complete.")
				return nil
			}
			return err
		}

		fmt.Fprintf(out, "\n[turn %d] %s\n", result.TurnNumber, result.Narration)
		if len(result.Suggestions) > 0 {
			fmt.Fprintf(out, "You could: %s\n", strings.Join(result.Suggestions, "; "))
		}
		if result.Exited {
			fmt.Fprintln(out, "The session is saved. Returning to the menu.")
			return nil
		}
	}
}

func printSessions(ctx context.Context, manager *session.Manager, out io.Writer) error {
	sessions, err := manager.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No saved sessions.")
		return nil
	}
	for _, meta := range sessions {
		fmt.Fprintf(out, "%s  %-24s turn %-3d %s  last played %s\n",
			meta.SessionID, meta.Title, meta.TurnCount, meta.Status,
			meta.LastPlayed.Format("2006-01-02 15:04"))
	}
	return nil
}

func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	parts := strings.SplitN(line, " ", 2)
	if len(parts) == 1 {
		return strings.ToLower(parts[0]), ""
	}
	return strings.ToLower(parts[0]), parts[1]
}

func readLine(ctx context.Context, scanner *bufio.Scanner) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	if !scanner.Scan() {
		return "", false
	}
	return scanner.Text(), true
}
