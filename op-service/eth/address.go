package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress parses 40 hex characters, with optional 0x prefix, into an address.
// All-lowercase and all-uppercase input is accepted as is. Mixed case must be a valid EIP-55 checksum.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	addr := common.HexToAddress(digits)
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return addr, nil
	}
	if addr.Hex()[2:] != digits {
		return common.Address{}, fmt.Errorf("invalid address checksum: %q", s)
	}
	return addr, nil
}
