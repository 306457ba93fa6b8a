// Package wallet exposes a seller's earnings.
package wallet

import (
	"context"
	"errors"

	apperrors "github.com/Mouaddiguoug/feetflight/internal/errors"
	"github.com/Mouaddiguoug/feetflight/internal/models"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
)

type Service struct {
	wallets repository.WalletRepository
}

func NewService(wallets repository.WalletRepository) *Service {
	return &Service{wallets: wallets}
}

// Balance returns the wallet of the calling seller.
func (s *Service) Balance(ctx context.Context, actor models.Actor) (*models.Wallet, error) {
	sellerID := actor.SellerID()
	if sellerID == "" {
		return nil, apperrors.Forbidden("Only sellers have a wallet")
	}
	w, err := s.wallets.FindBySeller(ctx, sellerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("wallet", sellerID)
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to load wallet", err)
	}
	return w, nil
}
