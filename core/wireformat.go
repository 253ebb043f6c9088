package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// TransactionPrelude is the §6 "transaction input (wire form)" header every
// transaction carries ahead of its manifest and signature list: a network
// discriminator, a validity epoch window, a replay-protection nonce, the
// notary's public key, the tip offered to the validator set, and the
// cost-unit ceiling the transaction is willing to pay for. Grounded on the
// original source's notarized-transaction header (see
// original_source/_INDEX.md), simplified to struct-only framing — this
// engine covers execution, not mempool admission or signature
// verification (spec.md §1 Non-goals).
type TransactionPrelude struct {
	NetworkId       uint8
	StartEpoch      uint64
	EndEpoch        uint64
	Nonce           uint64
	NotaryPublicKey common.Address
	TipPercentage   uint8
	CostUnitLimit   uint32
}

// EncodeTransactionPrelude RLP-frames a prelude, the same framing
// Ledger.DecodeBlockRLP's counterpart encoder uses for blocks.
func EncodeTransactionPrelude(p TransactionPrelude) ([]byte, error) {
	raw, err := rlp.EncodeToBytes(&p)
	if err != nil {
		return nil, &SystemError{Op: "EncodeTransactionPrelude", Err: err}
	}
	return raw, nil
}

// DecodeTransactionPrelude reverses EncodeTransactionPrelude.
func DecodeTransactionPrelude(data []byte) (TransactionPrelude, error) {
	var p TransactionPrelude
	if err := rlp.DecodeBytes(data, &p); err != nil {
		return TransactionPrelude{}, &SystemError{Op: "DecodeTransactionPrelude", Err: err}
	}
	return p, nil
}
