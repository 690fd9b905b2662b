package quota

import "fmt"

// Allocator deterministically maps a work item ordinal to a credential with
// sufficient remaining quota. The primary assignment is
// (ordinal - offset) mod credentialCount, which spreads load evenly and
// makes re-runs reproducible for the same row range.
type Allocator struct {
	ledger *Ledger
	offset int
}

// NewAllocator creates an allocator over the given ledger. The offset is
// subtracted from work ordinals before the modulo, so a roster whose first
// data row is N can pass offset N and have that row map to credential 0.
func NewAllocator(ledger *Ledger, offset int) *Allocator {
	return &Allocator{ledger: ledger, offset: offset}
}

// Allocate picks a credential guaranteed, at selection time, to have at
// least requiredUnits remaining. The primary candidate is tried first; if
// short on quota, all credentials are scanned in ledger order and the first
// with enough remaining wins. ErrQuotaExhausted means no credential
// qualifies and the caller must skip this work item, not abort the run.
func (a *Allocator) Allocate(ordinal, requiredUnits int) (*Credential, error) {
	creds := a.ledger.Credentials()
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	idx := (ordinal - a.offset) % len(creds)
	if idx < 0 {
		idx += len(creds)
	}

	primary := creds[idx]
	if primary.Remaining() >= requiredUnits {
		return primary, nil
	}

	for _, c := range creds {
		if c.Remaining() >= requiredUnits {
			return c, nil
		}
	}

	return nil, fmt.Errorf("%w: %d units required, best remaining %d",
		ErrQuotaExhausted, requiredUnits, a.bestRemaining())
}

func (a *Allocator) bestRemaining() int {
	best := 0
	for _, c := range a.ledger.Credentials() {
		if r := c.Remaining(); r > best {
			best = r
		}
	}
	return best
}
