package evmgateway

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCommand   = errors.New("command has no operations")
	ErrTooManySlots   = errors.New("too many storage slots")
	ErrSlotOutOfRange = errors.New("base slot exceeds 32 bytes")
)

// CommandError is returned for a malformed command, e.g. an unknown opcode or a reference to a missing constant.
type CommandError struct {
	Command int
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %d: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
