package core

// Outcome is the top-level result of executing one transaction's manifest.
type Outcome int

const (
	OutcomeCommit Outcome = iota
	OutcomeAbort
)

func (o Outcome) String() string {
	if o == OutcomeCommit {
		return "commit"
	}
	return "abort"
}

// Event is one emitted (emitter_node, event_name, payload_bytes) record, per
// the wire receipt shape of spec.md §6.
type Event struct {
	Emitter NodeId
	Name    string
	Payload []byte
}

// LogEntry is one emit_log(level, msg) call made during execution.
type LogEntry struct {
	Level string
	Msg   string
}

// BalanceChange is one resource's net movement for a single vault or account
// global address, grouped the way spec.md §6 describes: "by global address
// and by orphaned-vault id".
type BalanceChange struct {
	Holder   NodeId // global account address, or a bare vault id if orphaned
	Resource NodeId
	Delta    Decimal // signed: positive for deposit, negative for withdrawal
}

// StateUpdateSummary reports what a committed transaction created or moved,
// accumulated by the Executor as each instruction runs, without re-reading
// the database.
type StateUpdateSummary struct {
	NewPackages   []NodeId
	NewComponents []NodeId
	NewResources  []NodeId

	BalanceChanges       []BalanceChange
	DirectVaultUpdates   []BalanceChange // recall-style updates not attributable to an account
}

// Receipt is the final artifact a manifest execution produces, matching the
// wire receipt shape of spec.md §6.
type Receipt struct {
	Outcome Outcome
	Reason  string

	StateUpdates StateUpdates
	Summary      StateUpdateSummary

	Events []Event
	Logs   []LogEntry

	ConsumedCostUnits int64
	NewStateRoot      [32]byte
}
