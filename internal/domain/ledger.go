package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/pressplay/payments/internal/money"
)

type EntryDirection string

const (
	EntryDirectionDebit  EntryDirection = "debit"
	EntryDirectionCredit EntryDirection = "credit"
)

// LedgerRevenue is the default ledger name for creator earnings.
const LedgerRevenue = "revenue"

// LedgerEntry is one immutable posting in the double-entry log, scoped per
// (ledgerable subject, ledger name). Corrections are new compensating rows.
type LedgerEntry struct {
	ID             uuid.UUID
	LedgerableKind SubjectKind
	LedgerableID   uuid.UUID
	Ledger         string
	PaymentID      uuid.UUID
	RefundID       *uuid.UUID
	Direction      EntryDirection
	Amount         int64
	Currency       money.Currency
	BalanceAfter   int64
	OccurredAt     time.Time
}

// Signed returns the amount with the direction applied: credits increase the
// owner's balance, debits decrease it.
func (e *LedgerEntry) Signed() int64 {
	if e.Direction == EntryDirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

func (e *LedgerEntry) Owner() Subject {
	return Subject{Kind: e.LedgerableKind, ID: e.LedgerableID}
}
