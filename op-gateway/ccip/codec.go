package ccip

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Decode unpacks ABI-encoded data, e.g. calldata without its selector, into one Value per argument.
func Decode(args abi.Arguments, data []byte) ([]Value, error) {
	unpacked, err := args.Unpack(data)
	if err != nil {
		return nil, err
	}
	out := make([]Value, len(args))
	for i, arg := range args {
		v, err := fromABI(arg.Type, reflect.ValueOf(unpacked[i]))
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, arg.Type, err)
		}
		out[i] = v
	}
	return out, nil
}

// Encode packs one Value per argument.
func Encode(args abi.Arguments, values []Value) ([]byte, error) {
	if len(values) != len(args) {
		return nil, fmt.Errorf("expected %d values, got %d", len(args), len(values))
	}
	packable := make([]any, len(args))
	for i, arg := range args {
		rv, err := toABI(arg.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, arg.Type, err)
		}
		packable[i] = rv.Interface()
	}
	return args.Pack(packable...)
}

var bigIntType = reflect.TypeOf(new(big.Int))

// isBig reports whether go-ethereum represents the integer type as *big.Int rather than a native integer,
// which is the case for all but the 8, 16, 32 and 64 bit widths.
func isBig(t abi.Type) bool {
	return t.GetType() == bigIntType
}

func fromABI(t abi.Type, v reflect.Value) (Value, error) {
	switch t.T {
	case abi.UintTy:
		if isBig(t) {
			return Uint(v.Interface().(*big.Int)), nil
		}
		return Uint64(v.Uint()), nil
	case abi.IntTy:
		if isBig(t) {
			return Int(v.Interface().(*big.Int)), nil
		}
		return Int(big.NewInt(v.Int())), nil
	case abi.BoolTy:
		return Bool(v.Bool()), nil
	case abi.AddressTy:
		return Address(v.Interface().(common.Address)), nil
	case abi.StringTy:
		return String(v.String()), nil
	case abi.BytesTy:
		return Bytes(v.Bytes()), nil
	case abi.FixedBytesTy:
		b := make([]byte, v.Len())
		reflect.Copy(reflect.ValueOf(b), v)
		return Value{kind: KindBytes, raw: b}, nil
	case abi.SliceTy, abi.ArrayTy:
		elems := make([]Value, v.Len())
		for i := range elems {
			e, err := fromABI(*t.Elem, v.Index(i))
			if err != nil {
				return Value{}, err
			}
			elems[i] = e
		}
		return Array(elems...), nil
	case abi.TupleTy:
		fields := make([]Value, len(t.TupleElems))
		for i, ft := range t.TupleElems {
			f, err := fromABI(*ft, v.Field(i))
			if err != nil {
				return Value{}, fmt.Errorf("field %s: %w", t.TupleRawNames[i], err)
			}
			fields[i] = f
		}
		return Tuple(fields...), nil
	default:
		return Value{}, fmt.Errorf("unsupported ABI type %s", t)
	}
}

func toABI(t abi.Type, v Value) (reflect.Value, error) {
	switch t.T {
	case abi.UintTy:
		if err := v.expect(KindUint); err != nil {
			return reflect.Value{}, err
		}
		if v.num.Sign() < 0 || v.num.BitLen() > t.Size {
			return reflect.Value{}, fmt.Errorf("value %s out of range for uint%d", v.num, t.Size)
		}
		if isBig(t) {
			return reflect.ValueOf(new(big.Int).Set(v.num)), nil
		}
		rv := reflect.New(t.GetType()).Elem()
		rv.SetUint(v.num.Uint64())
		return rv, nil
	case abi.IntTy:
		if v.kind != KindInt && v.kind != KindUint {
			return reflect.Value{}, &KindError{Want: KindInt, Got: v.kind}
		}
		limit := new(big.Int).Lsh(common.Big1, uint(t.Size-1))
		if v.num.Cmp(limit) >= 0 || v.num.Cmp(new(big.Int).Neg(limit)) < 0 {
			return reflect.Value{}, fmt.Errorf("value %s out of range for int%d", v.num, t.Size)
		}
		if isBig(t) {
			return reflect.ValueOf(new(big.Int).Set(v.num)), nil
		}
		rv := reflect.New(t.GetType()).Elem()
		rv.SetInt(v.num.Int64())
		return rv, nil
	case abi.BoolTy:
		return reflect.ValueOf(v.flag), v.expect(KindBool)
	case abi.AddressTy:
		return reflect.ValueOf(v.addr), v.expect(KindAddress)
	case abi.StringTy:
		return reflect.ValueOf(v.str), v.expect(KindString)
	case abi.BytesTy:
		return reflect.ValueOf(common.CopyBytes(v.raw)), v.expect(KindBytes)
	case abi.FixedBytesTy:
		if err := v.expect(KindBytes); err != nil {
			return reflect.Value{}, err
		}
		if len(v.raw) != t.Size {
			return reflect.Value{}, fmt.Errorf("expected %d bytes, got %d", t.Size, len(v.raw))
		}
		rv := reflect.New(t.GetType()).Elem()
		reflect.Copy(rv, reflect.ValueOf(v.raw))
		return rv, nil
	case abi.SliceTy, abi.ArrayTy:
		if err := v.expect(KindArray); err != nil {
			return reflect.Value{}, err
		}
		var rv reflect.Value
		if t.T == abi.SliceTy {
			rv = reflect.MakeSlice(t.GetType(), len(v.elems), len(v.elems))
		} else {
			if len(v.elems) != t.Size {
				return reflect.Value{}, fmt.Errorf("expected %d elements, got %d", t.Size, len(v.elems))
			}
			rv = reflect.New(t.GetType()).Elem()
		}
		for i, e := range v.elems {
			ev, err := toABI(*t.Elem, e)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			rv.Index(i).Set(ev)
		}
		return rv, nil
	case abi.TupleTy:
		if err := v.expect(KindTuple); err != nil {
			return reflect.Value{}, err
		}
		if len(v.elems) != len(t.TupleElems) {
			return reflect.Value{}, fmt.Errorf("expected %d tuple fields, got %d", len(t.TupleElems), len(v.elems))
		}
		rv := reflect.New(t.GetType()).Elem()
		for i, ft := range t.TupleElems {
			fv, err := toABI(*ft, v.elems[i])
			if err != nil {
				return reflect.Value{}, fmt.Errorf("field %s: %w", t.TupleRawNames[i], err)
			}
			rv.Field(i).Set(fv)
		}
		return rv, nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported ABI type %s", t)
	}
}
