package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
	"github.com/AprilNEA/BYOKEY/internal/oauth"
	"github.com/AprilNEA/BYOKEY/internal/store"
)

// runLogin drives one provider's login ceremony to completion and persists
// the resulting account as that provider's active account.
func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	storePath := fs.String("store", defaultStorePath(), "token store path")
	if err := fs.Parse(args); err != nil {
		return userErr("%v", err)
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return userErr("usage: byokey login <provider>")
	}
	provider := credential.ProviderId(rest[0])
	if !isKnownProvider(provider) {
		return userErr("unknown provider %q", provider)
	}

	endpoints := buildEndpoints()
	ep, ok := endpoints[provider]
	if !ok {
		return userErr("no OAuth endpoints known for provider %q", provider)
	}

	clk := clock.Real{}
	client, err := httpclient.New(httpclient.Options{})
	if err != nil {
		return userErr("http client: %v", err)
	}

	flow, err := oauth.BuildFlow(provider, ep, client, clk)
	if err != nil {
		return userErr("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start, err := flow.Start(ctx)
	if err != nil {
		return authErr(err)
	}
	printLoginInstructions(provider, start)

	if oob, ok := flow.(*oauth.OOBPasteFlow); ok {
		go func() {
			oob.SubmitCode(promptLine("paste the code shown after completing login: "))
		}()
	}

	result, err := flow.Finish(ctx)
	if err != nil {
		return authErr(err)
	}

	if err := os.MkdirAll(filepath.Dir(*storePath), 0o700); err != nil {
		return userErr("store: %v", err)
	}
	tokenStore, err := store.OpenSQLite(*storePath)
	if err != nil {
		return userErr("store: %v", err)
	}
	defer tokenStore.Close()

	accountID := result.AccountID
	if accountID == "" {
		accountID = string(provider)
	}
	rec := store.Record{
		Account: credential.Account{
			Provider:  provider,
			AccountID: accountID,
			Label:     result.Label,
			IsActive:  true,
			CreatedAt: clk.Now(),
		},
		Credential: result.Credential,
	}
	if err := tokenStore.Put(ctx, rec); err != nil {
		return userErr("store: %v", err)
	}

	fmt.Printf("byokey: logged in to %s as %s (account %s)\n", provider, labelOrAccount(rec.Account), accountID)
	return nil
}

func labelOrAccount(a credential.Account) string {
	if a.Label != "" {
		return a.Label
	}
	return a.AccountID
}

func printLoginInstructions(provider credential.ProviderId, start oauth.StartResult) {
	switch {
	case start.UserCode != "":
		fmt.Printf("byokey: go to %s and enter code %s\n", start.VerificationURI, start.UserCode)
	case start.AuthURL != "":
		fmt.Printf("byokey: open this URL to log in to %s:\n  %s\n", provider, start.AuthURL)
	}
}

// runLogout removes every stored account for a provider.
func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	storePath := fs.String("store", defaultStorePath(), "token store path")
	if err := fs.Parse(args); err != nil {
		return userErr("%v", err)
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return userErr("usage: byokey logout <provider>")
	}
	provider := credential.ProviderId(rest[0])
	if !isKnownProvider(provider) {
		return userErr("unknown provider %q", provider)
	}

	tokenStore, err := store.OpenSQLite(*storePath)
	if err != nil {
		return userErr("store: %v", err)
	}
	defer tokenStore.Close()

	ctx := context.Background()
	accounts, err := tokenStore.ListAccounts(ctx, provider)
	if err != nil {
		return userErr("store: %v", err)
	}
	for _, acc := range accounts {
		if err := tokenStore.Delete(ctx, provider, acc.AccountID); err != nil {
			return userErr("store: %v", err)
		}
	}
	fmt.Printf("byokey: removed %d account(s) for %s\n", len(accounts), provider)
	return nil
}
