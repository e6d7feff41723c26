package interfaces

// ProcessedLedger is the durable record of message UIDs already handed to the
// classification pipeline. MarkProcessed must be durable before it returns.
type ProcessedLedger interface {
	IsProcessed(uid uint32) bool
	MarkProcessed(uid uint32) error
	// Prune drops UIDs no longer present in the currently unseen set so the
	// ledger does not grow without bound.
	Prune(currentUnseen []uint32)
	Size() int
}
