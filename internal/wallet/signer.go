// Package wallet abstracts the transaction-signing capability the payment
// flow depends on. The entitlement tracker only sees the Signer interface;
// production wires an operator key, tests wire a fake.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Signer can report its address and network and submit a native-currency
// transfer. SendNative blocks until the transaction is accepted by the node
// (not until it is mined).
type Signer interface {
	Address() common.Address
	ChainID(ctx context.Context) (*big.Int, error)
	SendNative(ctx context.Context, to common.Address, valueWei *big.Int) (common.Hash, error)
}

const nativeTransferGas = 21000

// KeySigner signs with a locally held ECDSA key and submits through an RPC
// client.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	client  *ethclient.Client
	chainID *big.Int
}

// NewKeySigner parses a hex-encoded private key ("0x"-prefixed or bare) and
// binds it to the given RPC client and chain id.
func NewKeySigner(hexKey string, client *ethclient.Client, chainID *big.Int) (*KeySigner, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		client:  client,
		chainID: new(big.Int).Set(chainID),
	}, nil
}

func (s *KeySigner) Address() common.Address { return s.address }

func (s *KeySigner) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(s.chainID), nil
}

// SendNative submits a plain value transfer and returns its hash.
func (s *KeySigner) SendNative(ctx context.Context, to common.Address, valueWei *big.Int) (common.Hash, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    valueWei,
		Gas:      nativeTransferGas,
		GasPrice: gasPrice,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transfer: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("submit transfer: %w", err)
	}
	return signed.Hash(), nil
}
