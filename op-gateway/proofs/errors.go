package proofs

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrOutputRootMismatch = errors.New("output root mismatch")

// PortalLookupError is returned when no provable block can be resolved for a portal,
// e.g. when the lookup contract reverts because no output is old enough.
type PortalLookupError struct {
	Portal common.Address
	MinAge uint64
	Err    error
}

func (e *PortalLookupError) Error() string {
	return fmt.Sprintf("failed to resolve provable block of portal %s with min age %d: %v", e.Portal, e.MinAge, e.Err)
}

func (e *PortalLookupError) Unwrap() error {
	return e.Err
}

// UnsupportedPortalError is returned for portals without a configured L2 RPC.
type UnsupportedPortalError struct {
	Portal common.Address
}

func (e *UnsupportedPortalError) Error() string {
	return fmt.Sprintf("portal %s is not supported: no L2 RPC configured", e.Portal)
}
