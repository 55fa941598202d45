package rewards

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInsufficientFunds is returned when a withdrawal exceeds the balance.
var ErrInsufficientFunds = errors.New("rewards: insufficient treasury funds")

// dust absorbs floating-point residue when a payout drains the treasury exactly.
const dust = 1e-9

// Treasury is the shared reward balance. It is only ever decremented.
// Thread-safe via Mutex.
type Treasury struct {
	mu      sync.Mutex
	initial float64
	balance float64
	paid    float64
}

// NewTreasury creates a treasury holding initial tokens.
func NewTreasury(initial float64) *Treasury {
	return &Treasury{initial: initial, balance: initial}
}

func (t *Treasury) Balance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balance
}

// Paid is the running total withdrawn.
func (t *Treasury) Paid() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paid
}

// Initial is the balance the treasury was created with.
func (t *Treasury) Initial() float64 {
	return t.initial
}

// Withdraw removes amount from the balance. The balance never goes negative.
func (t *Treasury) Withdraw(amount float64) error {
	if !(amount >= 0) || math.IsInf(amount, 1) {
		return fmt.Errorf("rewards: invalid withdrawal %v", amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if amount > t.balance+dust {
		return fmt.Errorf("%w: requested %.2f, available %.2f", ErrInsufficientFunds, amount, t.balance)
	}
	t.balance = max(0, t.balance-amount)
	t.paid += amount
	return nil
}
