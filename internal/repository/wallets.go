package repository

import (
	"context"
	"fmt"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

const (
	findWalletQuery = `
MATCH (:Seller {id: $sellerId})-[:HAS_A]->(w:Wallet)
RETURN w`

	creditWalletQuery = `
MATCH (:Seller {id: $sellerId})-[:HAS_A]->(w:Wallet)
SET w.balance = coalesce(w.balance, 0) + $amount, w.updatedAt = $updatedAt
RETURN w`
)

type Neo4jWalletRepository struct {
	runner graphdb.DBRunner
}

func NewWalletRepository(runner graphdb.DBRunner) *Neo4jWalletRepository {
	return &Neo4jWalletRepository{runner: runner}
}

func (r *Neo4jWalletRepository) FindBySeller(ctx context.Context, sellerID string) (*models.Wallet, error) {
	res, err := r.runner.Read(ctx, findWalletQuery, map[string]interface{}{"sellerId": sellerID})
	if err != nil {
		return nil, err
	}
	return graphdb.Scan[models.Wallet](res, "w")
}

func (r *Neo4jWalletRepository) Credit(ctx context.Context, sellerID string, amount int64) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := r.runner.WriteTx(ctx, func(ctx context.Context, tx graphdb.Tx) error {
		w, err := creditWallet(ctx, tx, sellerID, amount)
		wallet = w
		return err
	})
	return wallet, err
}

// creditWallet adds amount to the seller's wallet inside tx. A seller
// without a wallet aborts the transaction.
func creditWallet(ctx context.Context, tx graphdb.Tx, sellerID string, amount int64) (*models.Wallet, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative credit %d for seller %s", amount, sellerID)
	}
	res, err := tx.Run(ctx, creditWalletQuery, map[string]interface{}{
		"sellerId":  sellerID,
		"amount":    amount,
		"updatedAt": now(),
	})
	if err != nil {
		return nil, err
	}
	w, err := graphdb.Scan[models.Wallet](res, "w")
	if err != nil {
		return nil, fmt.Errorf("wallet of seller %s: %w", sellerID, err)
	}
	return w, nil
}
