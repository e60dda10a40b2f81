// Package wallet reads the custodial wallet directory: a JSON document
// mapping principal refs to their wallet address and secret material. The
// document is owned by the wallet tooling, not by the ledger; this package
// only resolves lookups and re-reads the file on every call so external
// updates are picked up immediately.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/osmowager/wagerbot/internal/domain"
)

// Directory is a file-backed domain.WalletDirectory.
type Directory struct {
	path string
}

// NewDirectory creates a Directory reading from the given JSON file.
func NewDirectory(path string) *Directory {
	return &Directory{path: path}
}

// Resolve looks up the principal's wallet record. It returns
// domain.ErrNotFound when the principal has no wallet on file, and
// domain.ErrStorage when the document cannot be read.
func (d *Directory) Resolve(ctx context.Context, principalRef string) (domain.WalletRecord, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.WalletRecord{}, domain.NewFault(domain.ErrNotFound, "no wallet for %s", principalRef)
		}
		return domain.WalletRecord{}, fmt.Errorf("walletdir: read %s: %v: %w", d.path, err, domain.ErrStorage)
	}

	var doc map[string]domain.WalletRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.WalletRecord{}, fmt.Errorf("walletdir: decode %s: %v: %w", d.path, err, domain.ErrStorage)
	}

	rec, ok := doc[principalRef]
	if !ok || rec.Address == "" {
		return domain.WalletRecord{}, domain.NewFault(domain.ErrNotFound, "no wallet for %s", principalRef)
	}
	return rec, nil
}

// Compile-time interface check.
var _ domain.WalletDirectory = (*Directory)(nil)
