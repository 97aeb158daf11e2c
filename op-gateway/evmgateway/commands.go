package evmgateway

import (
	"fmt"
)

const (
	FlagDynamic = 0x01

	OpConstant = 0x00
	OpBackref  = 0x20
	OpEnd      = 0xff

	opcodeMask  = 0xe0
	operandMask = 0x1f
)

// Command is a storage path: byte 0 holds the flags, bytes 1 to 31 the operations, terminated by OpEnd.
// The first operation yields the base slot, every further operation a mapping key or array index.
type Command [32]byte

// NewCommand builds a command from flags and operations.
func NewCommand(flags byte, ops ...byte) (Command, error) {
	var c Command
	if len(ops) > len(c)-1 {
		return c, fmt.Errorf("too many operations: %d", len(ops))
	}
	c[0] = flags
	n := copy(c[1:], ops)
	for i := 1 + n; i < len(c); i++ {
		c[i] = OpEnd
	}
	return c, nil
}

func (c Command) Dynamic() bool {
	return c[0]&FlagDynamic != 0
}

// Ops returns the operations up to the first OpEnd.
func (c Command) Ops() []byte {
	for i := 1; i < len(c); i++ {
		if c[i] == OpEnd {
			return c[1:i]
		}
	}
	return c[1:]
}

// Constant is an operation yielding constants[index].
func Constant(index uint8) byte {
	return OpConstant | (index & operandMask)
}

// Backref is an operation yielding the value of an earlier command.
func Backref(index uint8) byte {
	return OpBackref | (index & operandMask)
}
