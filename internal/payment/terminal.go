package payment

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"
)

// Terminal abstracts the card machine on the counter. The ledger never
// talks to a processor; it only records the reference the terminal hands
// back once the cardholder has paid.
type Terminal interface {
	Charge(ctx context.Context, amountCents int64) (reference string, err error)
}

// ManualTerminal models a standalone card machine: the operator keys the
// amount in by hand and the backend mints an opaque reference for the
// ledger entry.
type ManualTerminal struct{}

func (ManualTerminal) Charge(_ context.Context, _ int64) (string, error) {
	return newReference(), nil
}

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newReference() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("TXN-%d", time.Now().UnixMilli())
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return fmt.Sprintf("TXN-%d-%s", time.Now().UnixMilli(), buf)
}
