package ccip

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind is the variant of a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUint
	KindInt
	KindBool
	KindAddress
	KindBytes
	KindString
	KindTuple
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindAddress:
		return "address"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	case KindTuple:
		return "tuple"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(k))
	}
}

// Value is a decoded ABI value. Fixed-size and dynamic byte strings are both KindBytes,
// fixed-size and dynamic arrays are both KindArray. The ABI type the value is encoded with
// decides the width and length checks.
type Value struct {
	kind  Kind
	num   *big.Int
	flag  bool
	addr  common.Address
	raw   []byte
	str   string
	elems []Value
}

// KindError is returned when a Value is accessed or encoded as a kind it does not hold.
type KindError struct {
	Want Kind
	Got  Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("expected %s value, got %s", e.Want, e.Got)
}

func Uint(v *big.Int) Value {
	return Value{kind: KindUint, num: new(big.Int).Set(v)}
}

func Uint64(v uint64) Value {
	return Value{kind: KindUint, num: new(big.Int).SetUint64(v)}
}

func Int(v *big.Int) Value {
	return Value{kind: KindInt, num: new(big.Int).Set(v)}
}

func Bool(v bool) Value {
	return Value{kind: KindBool, flag: v}
}

func Address(v common.Address) Value {
	return Value{kind: KindAddress, addr: v}
}

func Bytes(v []byte) Value {
	return Value{kind: KindBytes, raw: common.CopyBytes(v)}
}

func String(v string) Value {
	return Value{kind: KindString, str: v}
}

func Tuple(fields ...Value) Value {
	return Value{kind: KindTuple, elems: fields}
}

func Array(elems ...Value) Value {
	return Value{kind: KindArray, elems: elems}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) expect(k Kind) error {
	if v.kind != k {
		return &KindError{Want: k, Got: v.kind}
	}
	return nil
}

// BigInt returns the number held by a KindUint or KindInt value.
func (v Value) BigInt() (*big.Int, error) {
	if v.kind != KindUint && v.kind != KindInt {
		return nil, &KindError{Want: KindUint, Got: v.kind}
	}
	return new(big.Int).Set(v.num), nil
}

func (v Value) Uint64() (uint64, error) {
	if err := v.expect(KindUint); err != nil {
		return 0, err
	}
	if !v.num.IsUint64() {
		return 0, fmt.Errorf("value %s does not fit uint64", v.num)
	}
	return v.num.Uint64(), nil
}

func (v Value) Bool() (bool, error) {
	return v.flag, v.expect(KindBool)
}

func (v Value) Address() (common.Address, error) {
	return v.addr, v.expect(KindAddress)
}

func (v Value) Bytes() ([]byte, error) {
	if err := v.expect(KindBytes); err != nil {
		return nil, err
	}
	return common.CopyBytes(v.raw), nil
}

func (v Value) String() string {
	switch v.kind {
	case KindUint, KindInt:
		return v.num.String()
	case KindBool:
		return fmt.Sprintf("%t", v.flag)
	case KindAddress:
		return v.addr.Hex()
	case KindBytes:
		return fmt.Sprintf("%#x", v.raw)
	case KindString:
		return v.str
	case KindTuple, KindArray:
		return fmt.Sprintf("%v", v.elems)
	default:
		return "<invalid>"
	}
}

// Text returns the string held by a KindString value.
func (v Value) Text() (string, error) {
	return v.str, v.expect(KindString)
}

// Elems returns the fields of a tuple or the elements of an array.
func (v Value) Elems() ([]Value, error) {
	if v.kind != KindTuple && v.kind != KindArray {
		return nil, &KindError{Want: KindArray, Got: v.kind}
	}
	return v.elems, nil
}
