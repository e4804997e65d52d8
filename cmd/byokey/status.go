package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/AprilNEA/BYOKEY/internal/store"
)

// runStatus lists every stored account across all known providers.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	storePath := fs.String("store", defaultStorePath(), "token store path")
	if err := fs.Parse(args); err != nil {
		return userErr("%v", err)
	}

	if _, err := os.Stat(*storePath); err != nil {
		fmt.Println("byokey: no accounts stored yet")
		return nil
	}

	tokenStore, err := store.OpenSQLite(*storePath)
	if err != nil {
		return userErr("store: %v", err)
	}
	defer tokenStore.Close()

	ctx := context.Background()
	printed := 0
	for _, p := range knownProviders() {
		accounts, err := tokenStore.ListAccounts(ctx, p)
		if err != nil {
			return userErr("store: %v", err)
		}
		for _, acc := range accounts {
			active := ""
			if acc.IsActive {
				active = " (active)"
			}
			fmt.Printf("%-12s %-24s %s%s\n", p, acc.AccountID, labelOrAccount(acc), active)
			printed++
		}
	}
	if printed == 0 {
		fmt.Println("byokey: no accounts stored yet")
	}
	return nil
}

// runAmp prints the amp upstream login URL — the CLI analogue of GET
// /amp/v1/login's redirect (internal/api/amp.go's handleAmpLogin).
func runAmp(args []string) error {
	fmt.Println("byokey: open this URL to log in to amp:")
	fmt.Println("  https://ampcode.com/login")
	return nil
}
