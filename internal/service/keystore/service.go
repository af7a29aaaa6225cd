// Package keystore hands out the per-domain RSA keypair, creating it
// lazily on first use. Once created, a domain's keypair never changes:
// remote servers cache the public key, so rotation would orphan every
// signature verification out there.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/heartmarshall/fedbridge/internal/domain"
)

type keyRepo interface {
	Get(ctx context.Context, domainName string) (domain.MagicKey, error)
	Insert(ctx context.Context, key *domain.MagicKey) error
}

// Service implements keypair provisioning.
type Service struct {
	keys keyRepo
	log  *slog.Logger
}

// NewService creates a new keystore service.
func NewService(log *slog.Logger, keys keyRepo) *Service {
	return &Service{
		keys: keys,
		log:  log.With("service", "keystore"),
	}
}

// GetOrCreate returns the keypair for a domain, generating one on first
// use. Concurrent first requests race on an insert where the first writer
// wins; everyone re-reads and agrees on the same keypair.
func (s *Service) GetOrCreate(ctx context.Context, domainName string) (domain.MagicKey, error) {
	key, err := s.keys.Get(ctx, domainName)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.MagicKey{}, fmt.Errorf("get keypair: %w", err)
	}

	generated, err := domain.GenerateMagicKey(domainName)
	if err != nil {
		return domain.MagicKey{}, err
	}

	if err := s.keys.Insert(ctx, generated); err != nil {
		return domain.MagicKey{}, fmt.Errorf("store keypair: %w", err)
	}

	// re-read: a concurrent writer may have won the insert
	key, err = s.keys.Get(ctx, domainName)
	if err != nil {
		return domain.MagicKey{}, fmt.Errorf("reload keypair: %w", err)
	}

	s.log.Info("created keypair", "domain", domainName)

	return key, nil
}
