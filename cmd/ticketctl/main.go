// ticketctl is the operator CLI for ticket issuance.  It holds the wallet
// connection (through CIP-30 bridge providers), mints and burns ticket
// tokens and talks to the registry API.
//
// The wallet capability lives only as long as one invocation; `connect`
// persists a hint so later commands silently reconnect to the same
// provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"connect":    {"connect a wallet and remember it for later commands", cmdConnect},
	"disconnect": {"forget the wallet connection", cmdDisconnect},
	"status":     {"show the wallet connection", cmdStatus},
	"mint":       {"issue one ticket to the connected wallet", cmdMint},
	"burn":       {"burn a ticket and mark it cancelled", cmdBurn},
	"verify":     {"check a ticket against the registry and the ledger", cmdVerify},
	"holdings":   {"list tickets held by the connected wallet with event, seat and resale cap", cmdHoldings},
	"token":      {"mint an issuer token for the registry API", cmdToken},
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stdout)
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}
	a := newApp(stdout, stderr)
	defer a.close()
	return execute(ctx, a, cmd, args)
}

func execute(ctx context.Context, a *app, cmd command, args []string) int {
	if err := cmd.run(ctx, a, args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		a.fail(ctx, args[0], err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: ticketctl <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-11s %s\n", n, commands[n].summary)
	}
}
