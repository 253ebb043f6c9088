package core

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestTransactionPreludeRoundTrip(t *testing.T) {
	want := TransactionPrelude{
		NetworkId:       1,
		StartEpoch:      10,
		EndEpoch:        20,
		Nonce:           42,
		NotaryPublicKey: common.HexToAddress("0x00000000000000000000000000000000000001"),
		TipPercentage:   5,
		CostUnitLimit:   1_000_000,
	}
	raw, err := EncodeTransactionPrelude(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeTransactionPrelude(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestDecodeTransactionPreludeRejectsGarbage(t *testing.T) {
	if _, err := DecodeTransactionPrelude([]byte{0xff, 0x00}); err == nil {
		t.Fatalf("expected decode of malformed bytes to fail")
	}
}
