package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// NativeDecimals is the precision of the chain's native token (STT).
const NativeDecimals = 18

// ParseNative converts a decimal string of the native unit ("0.1") into wei.
// The bundle price is configured as a decimal string, but on-chain values and
// explorer results are exact wei strings, so all comparisons happen in wei.
func ParseNative(amount string) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}

	parts := strings.SplitN(amount, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > NativeDecimals {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, NativeDecimals)
	}
	frac += strings.Repeat("0", NativeDecimals-len(frac))

	wei, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid native amount %q", amount)
	}
	if wei.Sign() < 0 {
		return nil, fmt.Errorf("negative native amount %q", amount)
	}
	return wei, nil
}

// FormatNative renders a wei value as a decimal string of the native unit,
// trimming trailing zeros ("100000000000000000" -> "0.1").
func FormatNative(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil)
	whole, frac := new(big.Int).QuoRem(new(big.Int).Abs(wei), denom, new(big.Int))

	s := whole.String()
	if frac.Sign() != 0 {
		fracStr := fmt.Sprintf("%0*s", NativeDecimals, frac.String())
		fracStr = strings.TrimRight(fracStr, "0")
		s += "." + fracStr
	}
	if wei.Sign() < 0 {
		s = "-" + s
	}
	return s
}
