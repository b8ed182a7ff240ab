package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Session is a wallet signing handle: the key, its derived address, and a
// transactor bound to one chain. It is constructed once at startup and passed
// explicitly into the gateway and workflow rather than living as ambient
// state, so tests can substitute a fake.
type Session struct {
	key     *ecdsa.PrivateKey
	address common.Address
	opts    *bind.TransactOpts
}

// NewSession creates a Session from a hex-encoded secp256k1 private key and
// the target chain ID.
func NewSession(privateKeyHex string, chainID int64) (*Session, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("ledger: invalid private key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(pk, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("ledger: create transactor: %w", err)
	}

	return &Session{
		key:     pk,
		address: ethcrypto.PubkeyToAddress(pk.PublicKey),
		opts:    opts,
	}, nil
}

// Address returns the account the session signs for.
func (s *Session) Address() common.Address {
	return s.address
}

// transactOpts returns a per-call copy of the transactor carrying ctx, so a
// cancelled context stops the submission without mutating shared state.
func (s *Session) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *s.opts
	opts.Context = ctx
	return &opts
}
