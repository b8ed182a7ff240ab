// Package ledger wraps the on-chain subscription and stable-token contracts
// behind typed read and write calls. It owns transaction submission and
// confirmation waits; sequencing and error reporting are the caller's job.
package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/kaikasekai/forecastd/internal/domain"
)

// Dial connects to the RPC endpoint and verifies that the node serves the
// expected chain. The contracts exist on exactly one network, so a mismatch
// aborts immediately instead of letting every later call revert confusingly.
func Dial(ctx context.Context, rpcURL string, chainID int64) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", rpcURL, err)
	}

	got, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger: query chain id: %w", err)
	}
	if got.Cmp(big.NewInt(chainID)) != 0 {
		client.Close()
		return nil, fmt.Errorf("ledger: node reports chain %s, need %d: %w", got, chainID, domain.ErrWrongChain)
	}

	return client, nil
}
