/*
schedule.go - Floor / percentage / cap fee split

PURPOSE:
  Given the pool a processor holds when a period is finalized, decide how
  much goes to the operations wallet, how much to the reward wallet, and
  how much stays behind (or is burned on cycle rollover).

ALGORITHM:
  wallet    = min(cap, max(floor, floor(walletPercent * pool / 100)))
  wallet    = min(wallet, pool)
  available = pool - wallet
  reward    = min(floor(rewardPercent * pool / 100), available)
  retained  = available - reward

  A floor above the cap is allowed; the cap is applied last and wins.
  The reward percentage is taken from the WHOLE pool, then clamped to what
  the wallet left. Rounding remainders always land in retained, so
  wallet + reward + retained == pool exactly.

EXAMPLE (floor 24k, 20%, cap 1.2M, reward 70%):
  pool 100 000   -> wallet  24 000, reward  70 000, retained 6 000
  pool 8 000 000 -> wallet 1 200 000 (capped), reward 5 600 000, retained 1 200 000

SEE ALSO:
  - processor.go: Applies the split to ledger balances
  - factory/deployment.go: Loads the constants from JSON
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ScheduleParameters are the deployment-specific fee constants. Amounts are
// in token base units.
type ScheduleParameters struct {
	WalletFloor   Amount
	WalletPercent decimal.Decimal
	WalletCap     Amount
	RewardPercent decimal.Decimal
}

// Split is the three-way division of a pool.
type Split struct {
	Wallet   Amount
	Reward   Amount
	Retained Amount
}

// Total returns wallet + reward + retained.
func (s Split) Total() Amount {
	return s.Wallet.Add(s.Reward).Add(s.Retained)
}

func (p ScheduleParameters) Validate() error {
	if p.WalletFloor.IsNegative() || p.WalletCap.IsNegative() {
		return fmt.Errorf("wallet floor and cap must be non-negative: %w", ErrInvalidSchedule)
	}
	if !validPercent(p.WalletPercent) {
		return fmt.Errorf("wallet percent %s not in [0, 100]: %w", p.WalletPercent, ErrInvalidSchedule)
	}
	if !validPercent(p.RewardPercent) {
		return fmt.Errorf("reward percent %s not in [0, 100]: %w", p.RewardPercent, ErrInvalidSchedule)
	}
	return nil
}

func validPercent(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

// Split divides pool according to the schedule.
func (p ScheduleParameters) Split(pool Amount) (Split, error) {
	if err := p.Validate(); err != nil {
		return Split{}, err
	}
	if pool.IsNegative() {
		return Split{}, fmt.Errorf("negative pool %s: %w", pool, ErrInvalidSchedule)
	}
	// Whole base units only; fractional dust stays in the pool.
	whole := Amount{Value: pool.Value.Floor(), Unit: pool.Unit}

	wallet := whole.Percent(p.WalletPercent).
		Max(p.WalletFloor.withUnit(pool.Unit)).
		Min(p.WalletCap.withUnit(pool.Unit)).
		Min(whole)

	available := whole.Sub(wallet)
	reward := whole.Percent(p.RewardPercent).Min(available)

	return Split{
		Wallet:   wallet,
		Reward:   reward,
		Retained: pool.Sub(wallet).Sub(reward),
	}, nil
}

func (a Amount) withUnit(u Unit) Amount {
	return Amount{Value: a.Value, Unit: u}
}
