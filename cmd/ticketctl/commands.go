package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/nft-ticket-registry/internal/assetname"
	"github.com/iliyamo/nft-ticket-registry/internal/burn"
	"github.com/iliyamo/nft-ticket-registry/internal/mint"
	"github.com/iliyamo/nft-ticket-registry/internal/model"
	"github.com/iliyamo/nft-ticket-registry/internal/policy"
	"github.com/iliyamo/nft-ticket-registry/internal/utils"
	"github.com/iliyamo/nft-ticket-registry/internal/wallet"
)

func flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("ticketctl "+name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

func cmdConnect(ctx context.Context, a *app, args []string) error {
	if err := flags("connect").Parse(args); err != nil {
		return err
	}
	s, err := a.wallet.Connect(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "connected %s\naddress %s\n", s.ProviderID, s.Address)
	return nil
}

func cmdDisconnect(ctx context.Context, a *app, args []string) error {
	if err := flags("disconnect").Parse(args); err != nil {
		return err
	}
	if err := a.wallet.Disconnect(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "disconnected")
	return nil
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	if err := flags("status").Parse(args); err != nil {
		return err
	}
	s, err := a.session(ctx)
	if errors.Is(err, wallet.ErrNotConnected) {
		fmt.Fprintln(a.out, "not connected")
		return nil
	}
	if err != nil {
		return err
	}
	return a.printJSON(s.WalletSession)
}

func cmdMint(ctx context.Context, a *app, args []string) error {
	fs := flags("mint")
	var req mint.Request
	fs.StringVar(&req.EventName, "event", "", "event name")
	fs.StringVar(&req.SeatID, "seat", "", "seat id, e.g. A-12-5")
	fs.Int64Var(&req.Price, "price", 0, "price in whole currency units")
	fs.StringVar(&req.Description, "description", "", "ticket description")
	fs.StringVar(&req.ImageURL, "image", "", "image URL for wallets and explorers")
	fs.BoolVar(&req.PaymentConfirmed, "paid", false, "payment has been confirmed")
	currency := fs.String("currency", "INR", "price currency")
	prefix := fs.String("prefix", assetname.DefaultPrefix, "asset name prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := a.metadataStore(ctx)
	if err != nil {
		return err
	}
	if _, err := a.session(ctx); err != nil {
		return err
	}
	c := mint.NewCoordinator(a.wallet, a.gateway, policy.NewDeriver(a.gateway), assetname.New(*prefix),
		store, a.registry, a.escalator, mint.Options{Currency: *currency}, a.log)

	res, err := c.Mint(ctx, req)
	if errors.Is(err, mint.ErrRegistryEscalated) {
		// the ticket exists; print it before reporting the registry problem
		_ = a.printJSON(res)
	}
	if err != nil {
		return err
	}
	return a.printJSON(res)
}

func cmdBurn(ctx context.Context, a *app, args []string) error {
	fs := flags("burn")
	unit := fs.String("unit", "", "asset unit to burn")
	keep := fs.Bool("keep-registry", false, "do not mark the ticket cancelled")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.session(ctx); err != nil {
		return err
	}
	c := burn.NewCoordinator(a.wallet, a.gateway, policy.NewDeriver(a.gateway), a.registry, burn.Options{}, a.log)

	tx, err := c.Burn(ctx, *unit)
	if err != nil {
		if tx != "" {
			fmt.Fprintf(a.errOut, "burn tx %s\n", tx)
		}
		return err
	}
	fmt.Fprintf(a.out, "burned %s in %s\n", *unit, tx)
	if *keep {
		return nil
	}
	if err := c.MarkCancelled(ctx, *unit); err != nil {
		return fmt.Errorf("burned in %s but the registry was not updated; rerun with the same unit: %w", tx, err)
	}
	fmt.Fprintln(a.out, "registry status CANCELLED")
	return nil
}

func cmdVerify(ctx context.Context, a *app, args []string) error {
	fs := flags("verify")
	unit := fs.String("unit", "", "asset unit to check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *unit == "" && fs.NArg() > 0 {
		*unit = fs.Arg(0)
	}
	v, err := a.registry.Verify(ctx, *unit)
	if err != nil {
		return err
	}
	return a.printJSON(v)
}

func cmdHoldings(ctx context.Context, a *app, args []string) error {
	fs := flags("holdings")
	all := fs.Bool("all", false, "include units not issued by this wallet's policy")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	pol, err := policy.NewDeriver(a.gateway).Derive(ctx, s.WalletSession)
	if err != nil {
		return err
	}
	units, err := a.gateway.AddressHoldings(ctx, s.Address)
	if err != nil {
		return err
	}
	for _, u := range units {
		id, err := model.ParseAssetUnit(u)
		if err != nil || (!*all && id.PolicyID != pol.PolicyID) {
			continue
		}
		info, err := a.gateway.AssetInfo(ctx, u)
		if err != nil {
			return fmt.Errorf("asset %s: %w", u, err)
		}
		md := info.OnchainMetadata
		fmt.Fprintf(a.out, "%s\t%s\t%s\t%s\t%s\t%s\n", u, id.AssetName(),
			attr(md, "event"), attr(md, "seat"), attr(md, "max_resale"), info.MintTxHash)
	}
	return nil
}

// attr reads a CIP-25 string attribute, joining chunked values.
func attr(md map[string]any, key string) string {
	switch v := md[key].(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, "")
	case []any:
		var b strings.Builder
		for _, p := range v {
			if s, ok := p.(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	}
	return "-"
}

func cmdToken(_ context.Context, a *app, args []string) error {
	fs := flags("token")
	subject := fs.String("subject", "ticketctl", "token subject")
	role := fs.String("role", utils.RoleIssuer, "role claim")
	ttl := fs.Int("ttl", 0, "lifetime in minutes (default ACCESS_TOKEN_TTL_MIN)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret, defTTL, err := a.secret()
	if err != nil {
		return err
	}
	if *ttl <= 0 {
		*ttl = defTTL
	}
	tok, err := utils.NewAccessToken(secret, *subject, *role, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok.Token)
	fmt.Fprintf(a.errOut, "expires %s\n", tok.Exp.Format(time.RFC3339))
	return nil
}

// tokenSettings reads JWT_SECRET and ACCESS_TOKEN_TTL_MIN without the
// server's fatal checks.
func tokenSettings() (string, int, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", 0, errors.New("JWT_SECRET is not set")
	}
	ttl := 60
	if v := os.Getenv("ACCESS_TOKEN_TTL_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", 0, fmt.Errorf("ACCESS_TOKEN_TTL_MIN: %w", err)
		}
		ttl = n
	}
	return secret, ttl, nil
}
