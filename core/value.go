package core

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
)

// ValueKind tags the sum type carried by every encoded Value, mirroring the
// SBOR discriminant byte: a single leading byte selects the shape of the
// payload that follows, so decoding never needs external schema context to
// find the next value's boundary.
type ValueKind byte

const (
	KindUnit ValueKind = iota
	KindBool
	KindI64
	KindU64
	KindString
	KindBytes
	KindTuple
	KindEnum
	KindArray
	KindMap
	KindCustom // NodeId / Decimal / other domain leaves
)

// Value is the self-describing value every substate payload and manifest
// argument is built from.
type Value struct {
	Kind ValueKind

	Bool   bool
	I64    int64
	U64    uint64
	Str    string
	Bytes  []byte
	Tuple  []Value
	Enum   EnumValue
	Array  []Value
	Map    []MapEntry // kept as an ordered slice; see proof.go for why maps
	Custom CustomValue
}

// EnumValue is a named-variant sum type: a discriminant plus its fields.
type EnumValue struct {
	Variant byte
	Fields  []Value
}

// MapEntry is a single key/value pair of a Value-kinded map. Entries are
// always encoded in ascending key-bytes order so that two maps built from
// the same logical content encode identically (determinism, spec.md §5).
type MapEntry struct {
	Key Value
	Val Value
}

// CustomValue carries a domain-specific leaf (NodeId, Decimal, ...) tagged
// by a type code distinct from ValueKind so the generic codec can treat it
// opaquely while higher layers interpret the bytes.
type CustomValue struct {
	TypeCode byte
	Payload  []byte
}

const (
	CustomNodeId  byte = 1
	CustomDecimal byte = 2
)

// Unit, Bool, I64, U64, Str and Bytes are constructors for the primitive
// value kinds, used throughout the manifest and resource-manager code to
// build Values without repeating the struct-literal shape everywhere.

func Unit() Value                { return Value{Kind: KindUnit} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func I64(v int64) Value          { return Value{Kind: KindI64, I64: v} }
func U64(v uint64) Value         { return Value{Kind: KindU64, U64: v} }
func Str(s string) Value         { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value       { return Value{Kind: KindBytes, Bytes: b} }
func TupleOf(vs ...Value) Value  { return Value{Kind: KindTuple, Tuple: vs} }
func ArrayOf(vs ...Value) Value  { return Value{Kind: KindArray, Array: vs} }
func NodeIdValue(id NodeId) Value {
	return Value{Kind: KindCustom, Custom: CustomValue{TypeCode: CustomNodeId, Payload: id[:]}}
}

// Encode serialises v into the canonical length-prefixed SBOR-style binary
// form. Every variable-length payload is prefixed with its length so a
// decoder never has to look ahead.
func Encode(v Value) []byte {
	var buf []byte
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case KindUnit:
	case KindBool:
		if v.Bool {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindI64:
		buf = appendU64(buf, uint64(v.I64))
	case KindU64:
		buf = appendU64(buf, v.U64)
	case KindString:
		buf = appendBytes(buf, []byte(v.Str))
	case KindBytes:
		buf = appendBytes(buf, v.Bytes)
	case KindTuple, KindArray:
		items := v.Tuple
		if v.Kind == KindArray {
			items = v.Array
		}
		buf = appendU64(buf, uint64(len(items)))
		for _, it := range items {
			buf = append(buf, Encode(it)...)
		}
	case KindEnum:
		buf = append(buf, v.Enum.Variant)
		buf = appendU64(buf, uint64(len(v.Enum.Fields)))
		for _, f := range v.Enum.Fields {
			buf = append(buf, Encode(f)...)
		}
	case KindMap:
		entries := append([]MapEntry(nil), v.Map...)
		sort.Slice(entries, func(i, j int) bool {
			return string(Encode(entries[i].Key)) < string(Encode(entries[j].Key))
		})
		buf = appendU64(buf, uint64(len(entries)))
		for _, e := range entries {
			buf = append(buf, Encode(e.Key)...)
			buf = append(buf, Encode(e.Val)...)
		}
	case KindCustom:
		buf = append(buf, v.Custom.TypeCode)
		buf = appendBytes(buf, v.Custom.Payload)
	default:
		panic(fmt.Sprintf("core: unknown value kind %d", v.Kind))
	}
	return buf
}

// Decode parses a canonical encoding produced by Encode and returns the
// value plus the number of bytes consumed.
func Decode(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return Value{}, 0, fmt.Errorf("core: decode: empty buffer")
	}
	kind := ValueKind(buf[0])
	pos := 1
	switch kind {
	case KindUnit:
		return Value{Kind: KindUnit}, pos, nil
	case KindBool:
		if pos >= len(buf) {
			return Value{}, 0, fmt.Errorf("core: decode bool: truncated")
		}
		b := buf[pos] != 0
		return Value{Kind: KindBool, Bool: b}, pos + 1, nil
	case KindI64:
		u, n, err := readU64(buf[pos:])
		return Value{Kind: KindI64, I64: int64(u)}, pos + n, err
	case KindU64:
		u, n, err := readU64(buf[pos:])
		return Value{Kind: KindU64, U64: u}, pos + n, err
	case KindString:
		b, n, err := readBytes(buf[pos:])
		return Value{Kind: KindString, Str: string(b)}, pos + n, err
	case KindBytes:
		b, n, err := readBytes(buf[pos:])
		return Value{Kind: KindBytes, Bytes: b}, pos + n, err
	case KindTuple, KindArray:
		count, n, err := readU64(buf[pos:])
		if err != nil {
			return Value{}, 0, err
		}
		pos += n
		items := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			item, n, err := Decode(buf[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			items = append(items, item)
			pos += n
		}
		if kind == KindArray {
			return Value{Kind: KindArray, Array: items}, pos, nil
		}
		return Value{Kind: KindTuple, Tuple: items}, pos, nil
	case KindEnum:
		if pos >= len(buf) {
			return Value{}, 0, fmt.Errorf("core: decode enum: truncated")
		}
		variant := buf[pos]
		pos++
		count, n, err := readU64(buf[pos:])
		if err != nil {
			return Value{}, 0, err
		}
		pos += n
		fields := make([]Value, 0, count)
		for i := uint64(0); i < count; i++ {
			f, n, err := Decode(buf[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			fields = append(fields, f)
			pos += n
		}
		return Value{Kind: KindEnum, Enum: EnumValue{Variant: variant, Fields: fields}}, pos, nil
	case KindMap:
		count, n, err := readU64(buf[pos:])
		if err != nil {
			return Value{}, 0, err
		}
		pos += n
		entries := make([]MapEntry, 0, count)
		for i := uint64(0); i < count; i++ {
			k, n, err := Decode(buf[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			pos += n
			val, n, err := Decode(buf[pos:])
			if err != nil {
				return Value{}, 0, err
			}
			pos += n
			entries = append(entries, MapEntry{Key: k, Val: val})
		}
		return Value{Kind: KindMap, Map: entries}, pos, nil
	case KindCustom:
		if pos >= len(buf) {
			return Value{}, 0, fmt.Errorf("core: decode custom: truncated")
		}
		code := buf[pos]
		pos++
		payload, n, err := readBytes(buf[pos:])
		return Value{Kind: KindCustom, Custom: CustomValue{TypeCode: code, Payload: payload}}, pos + n, err
	default:
		return Value{}, 0, fmt.Errorf("core: decode: unknown kind %d", kind)
	}
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU64(buf []byte) (uint64, int, error) {
	if len(buf) < 8 {
		return 0, 0, fmt.Errorf("core: readU64: truncated")
	}
	return binary.BigEndian.Uint64(buf[:8]), 8, nil
}

func appendBytes(buf, b []byte) []byte {
	buf = appendU64(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytes(buf []byte) ([]byte, int, error) {
	l, n, err := readU64(buf)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(buf)-n) < l {
		return nil, 0, fmt.Errorf("core: readBytes: truncated")
	}
	return buf[n : n+int(l)], n + int(l), nil
}

// decimalScale is the fixed-point scale applied to every Decimal, matching
// the 18-decimal-place convention used throughout the original coin
// arithmetic (core/coin.go's big.Int-scaled balances).
var decimalScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Decimal is a fixed-point amount: an arbitrary-precision integer number of
// subunits, always understood as scaled by 10^18.
type Decimal struct {
	subunits *big.Int
}

// NewDecimal builds a Decimal directly from a subunit count.
func NewDecimal(subunits *big.Int) Decimal {
	return Decimal{subunits: new(big.Int).Set(subunits)}
}

// DecimalFromInt64 builds a whole-number Decimal, e.g. DecimalFromInt64(5)
// represents the amount "5.000000000000000000".
func DecimalFromInt64(whole int64) Decimal {
	return Decimal{subunits: new(big.Int).Mul(big.NewInt(whole), decimalScale)}
}

func (d Decimal) Subunits() *big.Int { return new(big.Int).Set(d.subunits) }

func (d Decimal) Add(o Decimal) Decimal {
	return Decimal{subunits: new(big.Int).Add(d.subunits, o.subunits)}
}

func (d Decimal) Sub(o Decimal) Decimal {
	return Decimal{subunits: new(big.Int).Sub(d.subunits, o.subunits)}
}

func (d Decimal) Cmp(o Decimal) int { return d.subunits.Cmp(o.subunits) }

func (d Decimal) IsZero() bool { return d.subunits.Sign() == 0 }

func (d Decimal) IsNegative() bool { return d.subunits.Sign() < 0 }

func (d Decimal) String() string {
	whole := new(big.Int)
	rem := new(big.Int)
	whole.QuoRem(d.subunits, decimalScale, rem)
	if rem.Sign() < 0 {
		rem.Neg(rem)
	}
	return fmt.Sprintf("%s.%018s", whole.String(), rem.String())
}

// RoundDown truncates d to the given divisibility's precision, discarding
// any fractional subunits finer than 10^(18-divisibility). This is the
// primitive a redemption-style blueprint uses to convert a caller-supplied
// amount into one that fitsDivisibility accepts, rounding toward zero.
func (d Decimal) RoundDown(divisibility uint8) Decimal {
	if divisibility >= 18 {
		return d
	}
	step := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-divisibility)), nil)
	rem := new(big.Int).Rem(d.Subunits(), step)
	return Decimal{subunits: new(big.Int).Sub(d.subunits, rem)}
}

func (d Decimal) ToValue() Value {
	return Value{Kind: KindCustom, Custom: CustomValue{TypeCode: CustomDecimal, Payload: d.subunits.Bytes()}}
}
