package core

import (
	"math/big"
	"testing"
)

func TestValueEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		Unit(),
		Bool(true),
		I64(-42),
		U64(7),
		Str("hello"),
		Bytes([]byte{1, 2, 3}),
		TupleOf(I64(1), Str("a")),
		ArrayOf(U64(1), U64(2), U64(3)),
		NodeIdValue(NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "roundtrip", []byte("s"))),
		DecimalFromInt64(12345).ToValue(),
	}
	for i, v := range cases {
		encoded := Encode(v)
		decoded, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if n != len(encoded) {
			t.Fatalf("case %d: decode consumed %d of %d bytes", i, n, len(encoded))
		}
		if reencoded := Encode(decoded); string(reencoded) != string(encoded) {
			t.Fatalf("case %d: re-encoding mismatch: %x != %x", i, reencoded, encoded)
		}
	}
}

func TestValueEncodeIsCanonicalForMaps(t *testing.T) {
	m1 := Value{Kind: KindMap, Map: []MapEntry{
		{Key: Str("b"), Val: I64(2)},
		{Key: Str("a"), Val: I64(1)},
	}}
	m2 := Value{Kind: KindMap, Map: []MapEntry{
		{Key: Str("a"), Val: I64(1)},
		{Key: Str("b"), Val: I64(2)},
	}}
	if string(Encode(m1)) != string(Encode(m2)) {
		t.Fatalf("expected maps with identical logical content to encode identically regardless of insertion order")
	}
}

func TestDecimalArithmetic(t *testing.T) {
	a := DecimalFromInt64(10)
	b := DecimalFromInt64(3)
	if got := a.Add(b); got.Cmp(DecimalFromInt64(13)) != 0 {
		t.Fatalf("expected 13, got %s", got)
	}
	if got := a.Sub(b); got.Cmp(DecimalFromInt64(7)) != 0 {
		t.Fatalf("expected 7, got %s", got)
	}
	if DecimalFromInt64(0).IsZero() != true {
		t.Fatalf("expected zero decimal to report IsZero")
	}
	if DecimalFromInt64(-1).IsNegative() != true {
		t.Fatalf("expected negative decimal to report IsNegative")
	}
}

// TestDecimalRoundDownMatchesRedemptionScenario mirrors the divisibility
// rounding behaviour a redemption-style blueprint needs: redeeming
// 1.111111111111 pool units against a divisibility-2 resource yields
// exactly 1.11, truncated toward zero.
func TestDecimalRoundDownMatchesRedemptionScenario(t *testing.T) {
	whole := new(big.Int).Mul(big.NewInt(1), decimalScale)
	frac := new(big.Int).Mul(big.NewInt(111111111111), big.NewInt(1_000_000)) // 12 fractional digits, scale 1e18
	subunits := new(big.Int).Add(whole, frac)
	redeemed := NewDecimal(subunits)

	rounded := redeemed.RoundDown(2)
	step := new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil) // 18 - divisibility(2)
	expected := DecimalFromInt64(1).Add(NewDecimal(new(big.Int).Mul(big.NewInt(11), step)))
	if rounded.Cmp(expected) != 0 {
		t.Fatalf("expected rounded amount 1.11, got %s", rounded)
	}
	if !fitsDivisibility(rounded, 2) {
		t.Fatalf("expected rounded amount to fit divisibility 2")
	}
}
