// Command pgcli is a minimal interactive client for exercising a
// Session and QueryEngine end to end, grounded on the teacher's
// cmd/pglink: a flag-parsed entry point, a password prompt with echo
// disabled via golang.org/x/term when none is supplied on the command
// line, and a REPL loop over stdin. It drops the teacher's banner and
// rendered usage output, since those depended on charmbracelet/glamour,
// lipgloss, and go-colorful, which this module's stack does not carry.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/outpostdb/pgwire/pkg/auth"
	"github.com/outpostdb/pgwire/pkg/query"
	"github.com/outpostdb/pgwire/pkg/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pgcli:", err)
		os.Exit(1)
	}
}

func run() error {
	host := flag.String("host", "localhost", "server host")
	port := flag.Int("port", 5432, "server port")
	user := flag.String("user", os.Getenv("USER"), "connecting user")
	database := flag.String("database", "", "database name (defaults to user)")
	appName := flag.String("application-name", "pgcli", "application_name startup parameter")
	connectTimeout := flag.Duration("connect-timeout", 10*time.Second, "connection timeout")
	queryTimeout := flag.Duration("query-timeout", 30*time.Second, "default per-query timeout")
	verbose := flag.Bool("verbose", false, "log protocol-level detail")
	flag.Parse()

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	password, err := promptPassword()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	params := session.ConnectionParameters{
		User:            *user,
		Database:        *database,
		Host:            *host,
		Port:            *port,
		ApplicationName: *appName,
		Password:        auth.LiteralPassword(password),
		ConnectTimeout:  *connectTimeout,
		QueryTimeout:    *queryTimeout,
	}

	sess := session.New(params, logger)
	sess.On(session.EventNotice, func(n session.Notice) {
		fmt.Fprintf(os.Stderr, "NOTICE: %s\n", n.Message)
	})
	sess.On(session.EventNotification, func(n session.Notification) {
		fmt.Fprintf(os.Stderr, "NOTIFY %q: %s\n", n.Channel, n.Payload)
	})

	ctx, cancel := context.WithTimeout(context.Background(), *connectTimeout)
	defer cancel()
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.End()

	engine := query.NewEngine(sess)
	defer engine.Close()

	fmt.Printf("connected: %s\n", sess)
	return repl(engine)
}

// promptPassword returns PGPASSWORD if set, otherwise prompts on the
// controlling terminal with echo disabled, the way the teacher's CLI
// handles credentials the caller doesn't want appearing in a flag or
// shell history.
func promptPassword() (string, error) {
	if pw := os.Getenv("PGPASSWORD"); pw != "" {
		return pw, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	bytePw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePw), nil
}

// repl reads one statement per line from stdin and prints its result,
// terminating cleanly on EOF or a bare "\q".
func repl(engine *query.Engine) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("pgcli> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == `\q` {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result, err := engine.Execute(ctx, &query.Query{Text: text})
		cancel()
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		printResult(result)
	}
}

func printResult(result *query.Result) {
	if len(result.Fields) > 0 {
		names := make([]string, len(result.Fields))
		for i, f := range result.Fields {
			names[i] = f.Name
		}
		fmt.Println(strings.Join(names, " | "))
	}
	for _, row := range result.Rows {
		parts := make([]string, len(row.Values))
		for i, v := range row.Values {
			parts[i] = fmt.Sprintf("%v", v)
		}
		fmt.Println(strings.Join(parts, " | "))
	}
	if result.CommandTag.Command != "" {
		fmt.Printf("%s %d\n", result.CommandTag.Command, result.CommandTag.RowsAffected)
	}
}
