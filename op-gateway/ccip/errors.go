package ccip

import (
	"errors"
	"fmt"
)

var ErrDuplicateSelector = errors.New("duplicate function selector")

// FunctionNotFoundError is returned when a handler names a function the contract ABI does not have.
type FunctionNotFoundError struct {
	Function string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function %q not found in contract ABI", e.Function)
}
