package frontend

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mantlenetworkio/ccip-gateway/op-service/eth"
)

// ValidationError is a malformed request parameter. It is served as 400, before any RPC is made.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func parseAddress(field string, s string) (common.Address, error) {
	addr, err := eth.ParseAddress(s)
	if err != nil {
		return common.Address{}, &ValidationError{Field: field, Err: err}
	}
	return addr, nil
}

func parseCallData(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, &ValidationError{Field: "callData", Err: errors.New("missing 0x prefix")}
	}
	data, err := hexutil.Decode(s)
	if err != nil {
		return nil, &ValidationError{Field: "callData", Err: err}
	}
	return data, nil
}

func parseMinAge(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "minAge", Err: errors.New("not a non-negative integer")}
	}
	return v, nil
}
