// Package locker holds the time-lock domain model.
package locker

// Lock is a time-based release of custodied funds to a recipient. Locks are
// keyed by (recipient, index); indices are 1-based and never reused, so a
// reference to a fully claimed lock stays a valid lookup. A lock is an
// independent entity: deactivating the sender or recipient account does not
// touch it.
type Lock struct {
	Recipient string `json:"recipient"`
	Index     uint64 `json:"index"`
	Sender    string `json:"sender"`
	// Start is the beginning of the vesting window. For fixed locks it is
	// recorded as creation time plus one and carries no claim semantics.
	Start   int64  `json:"start"`
	Vesting bool   `json:"vesting"`
	End     int64  `json:"end"`
	Amount  uint64 `json:"amount"`
	Claimed uint64 `json:"claimed"`
}

// Exhausted reports whether the lock's full principal has been claimed.
func (l Lock) Exhausted() bool {
	return l.Claimed >= l.Amount
}

// Remaining returns the unclaimed principal.
func (l Lock) Remaining() uint64 {
	if l.Claimed >= l.Amount {
		return 0
	}
	return l.Amount - l.Claimed
}
