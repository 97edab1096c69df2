package evm

import (
	"context"
	"fmt"
	"math/big"
)

// Caller is the minimal contract-read surface the reader needs.
type Caller interface {
	CallContract(ctx context.Context, to, data string) (string, error)
}

// Reserves holds the raw reserve state of a V2-style liquidity pair.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// PairReader reads liquidity-pair and ERC-20 contract state over JSON-RPC.
type PairReader struct {
	caller Caller
}

// NewPairReader creates a reader on top of the given RPC caller.
func NewPairReader(caller Caller) *PairReader {
	return &PairReader{caller: caller}
}

// GetReserves reads getReserves() from a pair contract.
func (r *PairReader) GetReserves(ctx context.Context, pairAddress string) (*Reserves, error) {
	data, err := r.caller.CallContract(ctx, pairAddress, selGetReserves)
	if err != nil {
		return nil, fmt.Errorf("call getReserves on %s: %w", pairAddress, err)
	}

	reserve0, err := decodeWord(data, 0)
	if err != nil {
		return nil, fmt.Errorf("decode reserve0: %w", err)
	}
	reserve1, err := decodeWord(data, 1)
	if err != nil {
		return nil, fmt.Errorf("decode reserve1: %w", err)
	}
	tsWord, err := decodeWord(data, 2)
	if err != nil {
		return nil, fmt.Errorf("decode blockTimestampLast: %w", err)
	}

	return &Reserves{
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: uint32(tsWord.Uint64()),
	}, nil
}

// Token0 reads the address of the pair's first token.
func (r *PairReader) Token0(ctx context.Context, pairAddress string) (string, error) {
	data, err := r.caller.CallContract(ctx, pairAddress, selToken0)
	if err != nil {
		return "", fmt.Errorf("call token0 on %s: %w", pairAddress, err)
	}
	return decodeAddress(data, 0)
}

// Token1 reads the address of the pair's second token.
func (r *PairReader) Token1(ctx context.Context, pairAddress string) (string, error) {
	data, err := r.caller.CallContract(ctx, pairAddress, selToken1)
	if err != nil {
		return "", fmt.Errorf("call token1 on %s: %w", pairAddress, err)
	}
	return decodeAddress(data, 0)
}

// TokenDecimals reads decimals() from an ERC-20 token contract.
func (r *PairReader) TokenDecimals(ctx context.Context, tokenAddress string) (int, error) {
	data, err := r.caller.CallContract(ctx, tokenAddress, selDecimals)
	if err != nil {
		return 0, fmt.Errorf("call decimals on %s: %w", tokenAddress, err)
	}
	word, err := decodeWord(data, 0)
	if err != nil {
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	return int(word.Int64()), nil
}

// TokenSymbol reads symbol() from an ERC-20 token contract.
func (r *PairReader) TokenSymbol(ctx context.Context, tokenAddress string) (string, error) {
	data, err := r.caller.CallContract(ctx, tokenAddress, selSymbol)
	if err != nil {
		return "", fmt.Errorf("call symbol on %s: %w", tokenAddress, err)
	}
	return decodeString(data)
}

// TokenName reads name() from an ERC-20 token contract.
func (r *PairReader) TokenName(ctx context.Context, tokenAddress string) (string, error) {
	data, err := r.caller.CallContract(ctx, tokenAddress, selName)
	if err != nil {
		return "", fmt.Errorf("call name on %s: %w", tokenAddress, err)
	}
	return decodeString(data)
}

// ReserveToFloat converts a raw reserve to a token-unit float using the
// token's decimals.
func ReserveToFloat(reserve *big.Int, decimals int) float64 {
	if reserve == nil {
		return 0
	}
	f := new(big.Float).SetInt(reserve)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}
