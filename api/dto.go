/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Amounts are carried
  both in base units (exact integers as strings) and in whole tokens so
  clients never need to know the token's decimals.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/generic"
)

// =============================================================================
// AMOUNTS
// =============================================================================

type AmountDTO struct {
	BaseUnits string `json:"base_units"`
	Tokens    string `json:"tokens"`
	Unit      string `json:"unit"`
}

type SplitDTO struct {
	Pool     AmountDTO `json:"pool"`
	Wallet   AmountDTO `json:"wallet"`
	Reward   AmountDTO `json:"reward"`
	Retained AmountDTO `json:"retained"`
}

func toAmountDTO(dep *factory.Deployment, a generic.Amount) AmountDTO {
	return AmountDTO{
		BaseUnits: a.Value.String(),
		Tokens:    dep.FromBaseUnits(a).String(),
		Unit:      string(dep.Unit),
	}
}

func toSplitDTO(dep *factory.Deployment, pool generic.Amount, s generic.Split) SplitDTO {
	return SplitDTO{
		Pool:     toAmountDTO(dep, pool),
		Wallet:   toAmountDTO(dep, s.Wallet),
		Reward:   toAmountDTO(dep, s.Reward),
		Retained: toAmountDTO(dep, s.Retained),
	}
}

// =============================================================================
// PROCESSOR
// =============================================================================

type ProcessorDTO struct {
	DeploymentID      string `json:"deployment_id"`
	Calendar          string `json:"calendar"`
	Owner             string `json:"owner"`
	Processor         string `json:"processor"`
	OperationsWallet  string `json:"operations_wallet"`
	RewardWallet      string `json:"reward_wallet"`
	Policy            string `json:"policy"`
	GracePeriod       uint64 `json:"grace_period"`
	LastPeriodExecIdx uint64 `json:"last_period_exec_idx"`
	PeriodIdx         uint64 `json:"period_idx"`
	YearIdx           uint64 `json:"year_idx"`
}

type OutcomeDTO struct {
	Status        string           `json:"status"`
	CurrentPeriod uint64           `json:"current_period"`
	LastProcessed uint64           `json:"last_processed"`
	Distribution  *DistributionDTO `json:"distribution,omitempty"`
}

type DistributionDTO struct {
	ID         string   `json:"id"`
	FromPeriod uint64   `json:"from_period"`
	Period     uint64   `json:"period"`
	Split      SplitDTO `json:"split"`
	Burned     bool     `json:"burned"`
	FromCycle  uint64   `json:"from_cycle"`
	ToCycle    uint64   `json:"to_cycle"`
	Caller     string   `json:"caller"`
	ExecutedAt string   `json:"executed_at"`
}

type PreviewDTO struct {
	Status        string   `json:"status"`
	CurrentPeriod uint64   `json:"current_period"`
	Target        uint64   `json:"target,omitempty"`
	LastProcessed uint64   `json:"last_processed"`
	Split         SplitDTO `json:"split"`
	Burn          bool     `json:"burn"`
	FromCycle     uint64   `json:"from_cycle,omitempty"`
	ToCycle       uint64   `json:"to_cycle,omitempty"`
	GraceEndsAt   uint64   `json:"grace_ends_at,omitempty"`
}

type PeriodDTO struct {
	Period    uint64 `json:"period"`
	Start     uint64 `json:"start"`
	Processed bool   `json:"processed"`
}

type ClockDTO struct {
	Timestamp       uint64 `json:"timestamp"`
	Time            string `json:"time"`
	PeriodIdx       uint64 `json:"period_idx"`
	PeriodStart     uint64 `json:"period_start"`
	ElapsedInPeriod uint64 `json:"elapsed_in_period"`
	Cycle           uint64 `json:"cycle"`
}

func toDistributionDTO(dep *factory.Deployment, d generic.Distribution) DistributionDTO {
	return DistributionDTO{
		ID:         string(d.ID),
		FromPeriod: uint64(d.FromPeriod),
		Period:     uint64(d.Period),
		Split:      toSplitDTO(dep, d.Pool, d.Split),
		Burned:     d.Burned,
		FromCycle:  uint64(d.FromCycle),
		ToCycle:    uint64(d.ToCycle),
		Caller:     string(d.Caller),
		ExecutedAt: d.ExecutedAt.Time().Format(time.RFC3339),
	}
}

func toOutcomeDTO(dep *factory.Deployment, o generic.Outcome) OutcomeDTO {
	dto := OutcomeDTO{
		Status:        string(o.Status),
		CurrentPeriod: uint64(o.CurrentPeriod),
		LastProcessed: uint64(o.LastProcessed),
	}
	if o.Distribution != nil {
		d := toDistributionDTO(dep, *o.Distribution)
		dto.Distribution = &d
	}
	return dto
}

func toPreviewDTO(dep *factory.Deployment, p generic.Preview) PreviewDTO {
	pool := p.Pool
	if pool.Unit == "" {
		pool = generic.NewAmountFromInt(0, dep.Unit)
	}
	split := p.Split
	if split.Wallet.Unit == "" {
		zero := pool.Zero()
		split = generic.Split{Wallet: zero, Reward: zero, Retained: zero}
	}
	return PreviewDTO{
		Status:        string(p.Status),
		CurrentPeriod: uint64(p.CurrentPeriod),
		Target:        uint64(p.Target),
		LastProcessed: uint64(p.LastProcessed),
		Split:         toSplitDTO(dep, pool, split),
		Burn:          p.Burn,
		FromCycle:     uint64(p.FromCycle),
		ToCycle:       uint64(p.ToCycle),
		GraceEndsAt:   uint64(p.GraceEndsAt),
	}
}

// =============================================================================
// TOKENS
// =============================================================================

// TransferRequest moves whole tokens between accounts. An empty From
// mints, which is how fee inflow is simulated in development.
type TransferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type BalanceDTO struct {
	Address string    `json:"address"`
	Balance AmountDTO `json:"balance"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
