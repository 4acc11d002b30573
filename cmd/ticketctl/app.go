package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/iliyamo/nft-ticket-registry/internal/apperr"
	"github.com/iliyamo/nft-ticket-registry/internal/client"
	"github.com/iliyamo/nft-ticket-registry/internal/config"
	"github.com/iliyamo/nft-ticket-registry/internal/ledger"
	"github.com/iliyamo/nft-ticket-registry/internal/logging"
	"github.com/iliyamo/nft-ticket-registry/internal/metadata"
	"github.com/iliyamo/nft-ticket-registry/internal/mint"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	queue_publisher "github.com/iliyamo/nft-ticket-registry/internal/service"
	"github.com/iliyamo/nft-ticket-registry/internal/verify"
	"github.com/iliyamo/nft-ticket-registry/internal/wallet"
)

// registryAPI is what the CLI needs from the registry.  client.Registry
// implements it over HTTP.
type registryAPI interface {
	Create(ctx context.Context, rec *model.TicketRecord) error
	FindByAssetUnit(ctx context.Context, unit string) (*model.TicketRecord, error)
	UpdateStatus(ctx context.Context, unit string, status model.TicketStatus) error
	Verify(ctx context.Context, unit string) (verify.Verdict, error)
}

// app holds the collaborators of one invocation.  Tests build it directly.
type app struct {
	out, errOut io.Writer
	log         logging.Logger

	wallet    *wallet.Manager
	gateway   ledger.Gateway
	registry  registryAPI
	escalator mint.Escalator
	store     metadata.Store
	newStore  func(ctx context.Context) (metadata.Store, error)
	secret    func() (string, int, error)

	closers []func() error
}

func newApp(stdout, stderr io.Writer) *app {
	cc := config.LoadClientConfig()
	log := logging.NewJSONTo(stderr, cc.LogLevel).With("cmd", "ticketctl")
	wc := config.LoadWalletConfig()
	lc := config.LoadLedgerConfig()

	a := &app{out: stdout, errOut: stderr, log: log}
	a.wallet = wallet.NewManager(wallet.NewBridgeDiscoverer(wc), a.hintStore(wc), wc.Preference, log)
	a.gateway = ledger.NewBlockfrost(lc, ledger.NewHTTPBuilder(lc), log)
	a.registry = client.New(cc.APIURL, cc.APIToken, cc.Timeout)
	a.escalator = queue_publisher.NewPublisher(config.AMQPURL(), log)
	a.newStore = func(ctx context.Context) (metadata.Store, error) {
		return metadata.NewS3Store(ctx, config.LoadS3Config())
	}
	a.secret = tokenSettings
	return a
}

// hintStore shares the hint through Redis when configured, so several
// operator machines reconnect to the same provider; otherwise a yaml file.
func (a *app) hintStore(wc config.WalletConfig) wallet.HintStore {
	if wc.HintBackend == "redis" {
		if rdb := config.NewRedisClient(); rdb != nil {
			a.closers = append(a.closers, rdb.Close)
			return wallet.NewRedisHintStore(rdb, wc.HintKey)
		}
		a.log.Warn(context.Background(), "redis unavailable; using the hint file", "file", wc.HintFile)
	}
	return wallet.NewFileHintStore(wc.HintFile)
}

func (a *app) metadataStore(ctx context.Context) (metadata.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := a.newStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// session returns the live wallet session, reconnecting silently from the
// persisted hint when needed.
func (a *app) session(ctx context.Context) (wallet.Session, error) {
	if s, ok := a.wallet.Current(); ok {
		return s, nil
	}
	s, ok, err := a.wallet.AutoReconnect(ctx)
	if err != nil {
		return wallet.Session{}, err
	}
	if !ok {
		return wallet.Session{}, wallet.ErrNotConnected
	}
	return s, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints the user-facing reason and logs the internal one.
func (a *app) fail(ctx context.Context, cmd string, err error) {
	a.log.Error(ctx, "command failed", "command", cmd, "kind", apperr.KindOf(err).String(), "error", err)
	var ae *apperr.Error
	if errors.As(err, &ae) {
		fmt.Fprintf(a.errOut, "%s: %s\n", cmd, apperr.Message(err))
		return
	}
	fmt.Fprintf(a.errOut, "%s: %v\n", cmd, err)
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c()
	}
}
