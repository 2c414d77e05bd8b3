/*
ledger.go - The token ledger the processor moves funds through

PURPOSE:
  The fee processor does not own balances. It reads its own balance (the
  pool) and issues transfers and burns against an external fungible-token
  ledger. This file defines that boundary.

CONTRACT:
  1. BalanceOf never fails for an unknown account; it returns zero
  2. Transfer and Burn reject overdrafts with ErrInsufficientBalance
  3. Burn reduces TotalSupply by exactly the burned amount
  4. Transfer never changes TotalSupply

  The ledger is always used inside TxStore.WithTx during processing, so a
  failed burn after a successful transfer leaves no trace.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory balances for tests and simulations
  - store/sqlite/sqlite.go: Balances table, same transaction as processor state

SEE ALSO:
  - store.go: How a ledger is obtained inside a transaction
*/
package generic

import "context"

// TokenLedger is the fungible-token surface the processor depends on.
type TokenLedger interface {
	BalanceOf(ctx context.Context, account Address) (Amount, error)
	Transfer(ctx context.Context, from, to Address, amount Amount) error
	TotalSupply(ctx context.Context) (Amount, error)
	Burn(ctx context.Context, from Address, amount Amount) error
}

// MintableLedger can create supply. Used to seed genesis balances in
// development environments; the processor never mints.
type MintableLedger interface {
	TokenLedger
	Mint(ctx context.Context, to Address, amount Amount) error
}
