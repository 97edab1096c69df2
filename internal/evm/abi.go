package evm

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Function selectors for the contract reads this package performs. These
// are the first four bytes of the keccak256 hash of the canonical function
// signature.
const (
	selGetReserves = "0x0902f1ac" // getReserves()
	selToken0      = "0x0dfe1681" // token0()
	selToken1      = "0xd21220a7" // token1()
	selDecimals    = "0x313ce567" // decimals()
	selSymbol      = "0x95d89b41" // symbol()
	selName        = "0x06fdde03" // name()
)

const wordHexLen = 64 // one ABI word is 32 bytes

// stripHexPrefix removes a leading 0x or 0X.
func stripHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// parseHexUint64 parses a 0x-prefixed quantity into uint64.
func parseHexUint64(s string) (uint64, error) {
	v, err := strconv.ParseUint(stripHexPrefix(s), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex quantity %q: %w", s, err)
	}
	return v, nil
}

// decodeWord extracts the n-th 32-byte word from ABI-encoded return data
// as a big integer.
func decodeWord(data string, n int) (*big.Int, error) {
	hexData := stripHexPrefix(data)
	start := n * wordHexLen
	end := start + wordHexLen
	if len(hexData) < end {
		return nil, fmt.Errorf("return data too short: want word %d, have %d hex chars", n, len(hexData))
	}

	v, ok := new(big.Int).SetString(hexData[start:end], 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex word %q", hexData[start:end])
	}
	return v, nil
}

// decodeAddress extracts the n-th word as a checksummed-free lowercase
// 0x address (last 20 bytes of the word).
func decodeAddress(data string, n int) (string, error) {
	hexData := stripHexPrefix(data)
	start := n * wordHexLen
	end := start + wordHexLen
	if len(hexData) < end {
		return "", fmt.Errorf("return data too short for address word %d", n)
	}

	word := hexData[start:end]
	return "0x" + strings.ToLower(word[24:]), nil
}

// decodeString decodes a dynamically-encoded ABI string return value. Some
// older tokens return symbol/name as a fixed bytes32 instead; that layout
// is handled as a fallback.
func decodeString(data string) (string, error) {
	hexData := stripHexPrefix(data)
	if hexData == "" {
		return "", fmt.Errorf("empty return data")
	}

	// Single word: treat as bytes32, trim trailing zero bytes.
	if len(hexData) == wordHexLen {
		return decodeBytes32String(hexData)
	}

	offset, err := decodeWord(hexData, 0)
	if err != nil {
		return "", err
	}
	offHex := int(offset.Int64()) * 2
	if offHex+wordHexLen > len(hexData) {
		return "", fmt.Errorf("string offset %d out of range", offset.Int64())
	}

	length, ok := new(big.Int).SetString(hexData[offHex:offHex+wordHexLen], 16)
	if !ok {
		return "", fmt.Errorf("invalid string length word")
	}
	strStart := offHex + wordHexLen
	strEnd := strStart + int(length.Int64())*2
	if strEnd > len(hexData) {
		return "", fmt.Errorf("string body out of range")
	}

	raw, err := hexToBytes(hexData[strStart:strEnd])
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeBytes32String(word string) (string, error) {
	raw, err := hexToBytes(word)
	if err != nil {
		return "", err
	}
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return string(raw[:end]), nil
}

func hexToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", s[i*2:i*2+2], err)
		}
		out[i] = byte(v)
	}
	return out, nil
}
