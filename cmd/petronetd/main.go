// Petronet full node daemon.
//
// Usage:
//
//	petronetd [options]      Run a ledger node
//	petronetd --help         Show help
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/petronet-labs/petronet-chain/config"
	"github.com/petronet-labs/petronet-chain/internal/node"
	"github.com/petronet-labs/petronet-chain/pkg/crypto"
	"golang.org/x/term"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	identity, err := loadOrCreateKeyfile(cfg.Key.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg, identity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}

// loadOrCreateKeyfile resolves the node identity. An empty path means
// an ephemeral identity (the node generates one). A missing keyfile is
// created from a fresh mnemonic, shown once so the operator can store
// the recovery phrase.
func loadOrCreateKeyfile(path string) (*crypto.Identity, error) {
	if path == "" {
		return nil, nil // node runs with an ephemeral identity
	}

	if _, err := os.Stat(path); err == nil {
		passphrase, err := readPassword(fmt.Sprintf("Passphrase for %s: ", path))
		if err != nil {
			return nil, err
		}
		id, err := crypto.LoadIdentity(path, passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlock keyfile: %w", err)
		}
		return id, nil
	}

	fmt.Printf("Keyfile %s does not exist, creating a new identity.\n", path)

	mnemonic, err := crypto.NewMnemonic()
	if err != nil {
		return nil, err
	}
	id, err := crypto.IdentityFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}

	fmt.Println("\nRecovery phrase (write it down, shown only once):")
	fmt.Printf("\n  %s\n\n", mnemonic)

	passphrase, err := readPassword("New keyfile passphrase: ")
	if err != nil {
		return nil, err
	}
	confirm, err := readPassword("Confirm passphrase: ")
	if err != nil {
		return nil, err
	}
	if string(passphrase) != string(confirm) {
		return nil, errors.New("passphrases do not match")
	}

	if err := crypto.SaveIdentity(id, path, passphrase); err != nil {
		return nil, fmt.Errorf("save keyfile: %w", err)
	}
	fmt.Printf("Identity %s saved to %s\n", id.Addr, path)
	return id, nil
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}
