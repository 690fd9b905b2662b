// Package quota tracks per-credential API quota consumption and assigns
// credentials to units of work.
package quota

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for allocation and ledger loading.
var (
	// ErrNoCredentials indicates the ledger holds no usable credentials.
	// This is a configuration failure and aborts the run.
	ErrNoCredentials = errors.New("quota: no credentials loaded")
	// ErrQuotaExhausted indicates no credential has enough remaining quota
	// for the requested work. Fatal for the current work item only.
	ErrQuotaExhausted = errors.New("quota: all credentials exhausted")
)

// Credential is one API key plus its quota bookkeeping. Remaining quota is
// recomputed after every debit and never goes negative by contract: the
// allocator refuses work that would exceed it before any call is made.
type Credential struct {
	// Name uniquely identifies the credential.
	Name string
	// Key is the API key secret.
	Key string
	// Total is the daily quota allowance in provider units.
	Total int
	// Used is the quota consumed so far, including prior runs today.
	Used int
	// SessionUsed is the quota consumed during this process execution.
	SessionUsed int
	// Errors counts failed calls attributed to this credential.
	Errors int
}

// Remaining returns the quota units still available.
func (c *Credential) Remaining() int {
	return c.Total - c.Used
}

// Usage is the external representation of one credential's consumption,
// produced for periodic flushes back to the credential store.
type Usage struct {
	Name         string
	Used         int
	Remaining    int
	UsagePercent float64
	SessionUsed  int
	// LastUsed is set only for credentials that saw traffic this session.
	LastUsed time.Time
}

// Ledger is the authoritative in-memory record of quota consumption for one
// run. It is seeded from a stored snapshot and flushed back at checkpoints.
// Single-writer, single-reader: the collector loop is sequential, so no
// locking is needed.
type Ledger struct {
	creds  []*Credential
	byName map[string]*Credential
	now    func() time.Time
}

// NewLedger builds a ledger from the given credentials, preserving their
// order for deterministic allocation. Fails if none are provided.
func NewLedger(creds []Credential) (*Ledger, error) {
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	l := &Ledger{
		byName: make(map[string]*Credential, len(creds)),
		now:    time.Now,
	}
	for i := range creds {
		c := creds[i]
		if c.Name == "" || c.Key == "" {
			continue
		}
		cc := c
		cc.SessionUsed = 0
		l.creds = append(l.creds, &cc)
		l.byName[cc.Name] = &cc
	}
	if len(l.creds) == 0 {
		return nil, ErrNoCredentials
	}
	return l, nil
}

// Len returns the number of credentials in the ledger.
func (l *Ledger) Len() int {
	return len(l.creds)
}

// Credentials returns the credentials in allocation order.
func (l *Ledger) Credentials() []*Credential {
	return l.creds
}

// Remaining returns the remaining quota for the named credential, or 0 for
// an unknown name.
func (l *Ledger) Remaining(name string) int {
	c, ok := l.byName[name]
	if !ok {
		return 0
	}
	return c.Remaining()
}

// Debit records units consumed against the named credential. Debit always
// succeeds: it records actual usage, which providers may charge even for
// failed calls. Enforcement happens at allocation time.
func (l *Ledger) Debit(name string, units int) {
	c, ok := l.byName[name]
	if !ok {
		return
	}
	c.Used += units
	c.SessionUsed += units
}

// RecordError counts a failed call against the named credential.
func (l *Ledger) RecordError(name string) {
	if c, ok := l.byName[name]; ok {
		c.Errors++
	}
}

// Snapshot returns the current consumption state for flushing to the
// credential store. LastUsed is populated only for credentials that were
// actually exercised this session.
func (l *Ledger) Snapshot() []Usage {
	now := l.now()
	out := make([]Usage, 0, len(l.creds))
	for _, c := range l.creds {
		u := Usage{
			Name:        c.Name,
			Used:        c.Used,
			Remaining:   c.Remaining(),
			SessionUsed: c.SessionUsed,
		}
		if c.Total > 0 {
			u.UsagePercent = float64(c.Used) / float64(c.Total) * 100
		}
		if c.SessionUsed > 0 {
			u.LastUsed = now
		}
		out = append(out, u)
	}
	return out
}

// TotalRemaining sums the remaining quota across all credentials.
func (l *Ledger) TotalRemaining() int {
	total := 0
	for _, c := range l.creds {
		total += c.Remaining()
	}
	return total
}

// String summarizes the ledger for status logging.
func (l *Ledger) String() string {
	used, remaining := 0, 0
	for _, c := range l.creds {
		used += c.Used
		remaining += c.Remaining()
	}
	return fmt.Sprintf("%d keys, %d used, %d remaining", len(l.creds), used, remaining)
}
