package types

import (
	"fmt"
	"strings"
)

// Slot is a ledger position. Slots are issued monotonically; a slot may or
// may not have a block.
type Slot = uint64

// Commitment is the finality tier requested from the data source.
// Higher tiers refine lower ones and never regress once observed.
type Commitment uint8

const (
	// CommitmentProcessed is the lowest tier: seen by the leader, not yet voted.
	CommitmentProcessed Commitment = iota

	// CommitmentConfirmed means a supermajority of stake voted on the block.
	CommitmentConfirmed

	// CommitmentFinalized means the block is rooted and effectively irreversible.
	CommitmentFinalized
)

// String returns the RPC name of the commitment level.
func (c Commitment) String() string {
	switch c {
	case CommitmentProcessed:
		return "processed"
	case CommitmentConfirmed:
		return "confirmed"
	case CommitmentFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// ParseCommitment parses an RPC commitment name.
func ParseCommitment(s string) (Commitment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "processed":
		return CommitmentProcessed, nil
	case "confirmed":
		return CommitmentConfirmed, nil
	case "finalized":
		return CommitmentFinalized, nil
	default:
		return 0, fmt.Errorf("unknown commitment level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// TransactionDetails is the level of transaction detail requested with a block.
type TransactionDetails string

// Transaction detail levels accepted by getBlock.
const (
	TransactionDetailsFull       TransactionDetails = "full"
	TransactionDetailsAccounts   TransactionDetails = "accounts"
	TransactionDetailsSignatures TransactionDetails = "signatures"
	TransactionDetailsNone       TransactionDetails = "none"
)

// ParseTransactionDetails parses a transaction detail level.
func ParseTransactionDetails(s string) (TransactionDetails, error) {
	switch d := TransactionDetails(strings.ToLower(strings.TrimSpace(s))); d {
	case TransactionDetailsFull, TransactionDetailsAccounts, TransactionDetailsSignatures, TransactionDetailsNone:
		return d, nil
	default:
		return "", fmt.Errorf("unknown transaction details level %q", s)
	}
}

// BlockRecord is the per-block metadata kept by the listener.
// Identity is Blockhash; a stored record is never revised except for
// raising its Commitment.
type BlockRecord struct {
	// Blockhash uniquely identifies the block.
	Blockhash Hash `json:"blockhash"`

	// Slot is the ledger position of the block.
	Slot Slot `json:"slot"`

	// ParentSlot is the parent's slot. Some backends omit it.
	ParentSlot *Slot `json:"parentSlot,omitempty"`

	// Height is the number of blocks beneath this one.
	Height uint64 `json:"blockHeight"`

	// TxCount is the number of transactions at the requested detail level.
	// Nil when the detail level carries no transaction list.
	TxCount *uint64 `json:"transactionCount,omitempty"`

	// Commitment is the tier at which the record was observed.
	Commitment Commitment `json:"commitment"`
}

// SameContent reports whether two records describe the same block,
// ignoring the commitment tier they were observed at.
func (r BlockRecord) SameContent(other BlockRecord) bool {
	if r.Blockhash != other.Blockhash || r.Slot != other.Slot || r.Height != other.Height {
		return false
	}
	if !equalPtr(r.ParentSlot, other.ParentSlot) {
		return false
	}
	return equalPtr(r.TxCount, other.TxCount)
}

func equalPtr(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
