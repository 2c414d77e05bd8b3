/*
Package factory provides JSON to Go deployment conversion.

PURPOSE:
  Converts JSON (or YAML) deployment definitions into a calendar and the
  processor configuration. Schedule constants are written in whole tokens
  and scaled to base units with the token's decimals, so operators never
  type 24000000000000000000000.

JSON SCHEMA:
  {
    "id": "nrg-weekly",
    "name": "Standard fee schedule",
    "calendar": {"preset": "weekly"},
    "grace_period": 24,
    "token": {"symbol": "NRG", "decimals": 18},
    "wallets": {
      "operations": "0xops",
      "reward": "0xreward",
      "processor": "0xfee",
      "owner": "0xdeployer"
    },
    "schedule": {
      "wallet_floor": "24000",
      "wallet_percent": "20",
      "wallet_cap": "1200000",
      "reward_percent": "70"
    },
    "policy": "anyone"
  }

  A custom calendar replaces "preset" with explicit fields:
    {"units_per_period": 168, "seconds_per_unit": 3600,
     "cycle_mode": "gregorian", "max_year": 2400}

USAGE:
  factory := NewDeploymentFactory()
  dep, err := factory.ParseDeployment(jsonString)
  proc, err := generic.NewFeeProcessor(ctx, generic.ProcessorDeps{
      Calendar: dep.Calendar, ...}, dep.Config)

SEE ALSO:
  - deployments/presets.go: Named calendars and preset JSON
  - generic/processor.go: Consumes the result
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/fee-engine/deployments"
	"github.com/warp/fee-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// DeploymentJSON is the JSON representation of a deployment.
type DeploymentJSON struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Calendar    CalendarJSON `json:"calendar" yaml:"calendar"`
	GracePeriod uint64       `json:"grace_period" yaml:"grace_period"` // calendar units
	Token       TokenJSON    `json:"token" yaml:"token"`
	Wallets     WalletsJSON  `json:"wallets" yaml:"wallets"`
	Schedule    ScheduleJSON `json:"schedule" yaml:"schedule"`
	Policy      string       `json:"policy,omitempty" yaml:"policy,omitempty"` // anyone, owner_only
}

// CalendarJSON selects a preset or describes a custom calendar.
type CalendarJSON struct {
	Preset          string `json:"preset,omitempty" yaml:"preset,omitempty"`
	UnitsPerPeriod  uint64 `json:"units_per_period,omitempty" yaml:"units_per_period,omitempty"`
	SecondsPerUnit  uint64 `json:"seconds_per_unit,omitempty" yaml:"seconds_per_unit,omitempty"`
	CycleMode       string `json:"cycle_mode,omitempty" yaml:"cycle_mode,omitempty"`
	PeriodsPerCycle uint64 `json:"periods_per_cycle,omitempty" yaml:"periods_per_cycle,omitempty"`
	ConstantCycle   uint64 `json:"constant_cycle,omitempty" yaml:"constant_cycle,omitempty"`
	MaxYear         uint64 `json:"max_year,omitempty" yaml:"max_year,omitempty"` // gregorian only
}

type TokenJSON struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int32  `json:"decimals" yaml:"decimals"`
}

type WalletsJSON struct {
	Operations string `json:"operations" yaml:"operations"`
	Reward     string `json:"reward" yaml:"reward"`
	Processor  string `json:"processor" yaml:"processor"`
	Owner      string `json:"owner" yaml:"owner"`
}

// ScheduleJSON holds the fee constants in whole tokens.
type ScheduleJSON struct {
	WalletFloor   Quantity `json:"wallet_floor" yaml:"wallet_floor"`
	WalletPercent Quantity `json:"wallet_percent" yaml:"wallet_percent"`
	WalletCap     Quantity `json:"wallet_cap" yaml:"wallet_cap"`
	RewardPercent Quantity `json:"reward_percent" yaml:"reward_percent"`
}

// Quantity is a decimal that accepts both numbers and strings in JSON and YAML.
type Quantity struct {
	decimal.Decimal
}

func (q *Quantity) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %q is not a number: %w", node.Line, node.Value, err)
	}
	q.Decimal = d
	return nil
}

func (q Quantity) MarshalYAML() (interface{}, error) {
	return q.Decimal.String(), nil
}

// =============================================================================
// DEPLOYMENT FACTORY
// =============================================================================

// Deployment is a parsed, scaled deployment ready to construct a processor.
type Deployment struct {
	ID       string
	Name     string
	Calendar generic.PeriodCalendar
	Config   generic.ProcessorConfig
	Unit     generic.Unit
	Decimals int32
}

// DeploymentFactory converts JSON deployments to Go structs.
type DeploymentFactory struct{}

// NewDeploymentFactory creates a new deployment factory.
func NewDeploymentFactory() *DeploymentFactory {
	return &DeploymentFactory{}
}

// ParseDeployment parses a JSON string into a Deployment.
func (f *DeploymentFactory) ParseDeployment(jsonStr string) (*Deployment, error) {
	var dj DeploymentJSON
	if err := json.Unmarshal([]byte(jsonStr), &dj); err != nil {
		return nil, fmt.Errorf("failed to parse deployment JSON: %w", err)
	}
	return f.FromJSON(dj)
}

// FromJSON converts DeploymentJSON to a Deployment.
func (f *DeploymentFactory) FromJSON(dj DeploymentJSON) (*Deployment, error) {
	cal, err := parseCalendar(dj.Calendar)
	if err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	if dj.Token.Decimals < 0 || dj.Token.Decimals > 36 {
		return nil, &generic.ConfigurationError{Field: "token.decimals", Reason: fmt.Sprintf("%d not in [0, 36]", dj.Token.Decimals)}
	}
	unit := generic.Unit(dj.Token.Symbol)
	scale := decimal.New(1, dj.Token.Decimals)

	schedule := generic.ScheduleParameters{
		WalletFloor:   generic.NewAmount(dj.Schedule.WalletFloor.Mul(scale), unit),
		WalletPercent: dj.Schedule.WalletPercent.Decimal,
		WalletCap:     generic.NewAmount(dj.Schedule.WalletCap.Mul(scale), unit),
		RewardPercent: dj.Schedule.RewardPercent.Decimal,
	}
	if err := schedule.Validate(); err != nil {
		return nil, &generic.ConfigurationError{Field: "schedule", Reason: err.Error(), Err: err}
	}

	policy := generic.ProcessPolicy(dj.Policy)
	if policy == "" {
		policy = generic.PolicyAnyone
	}

	return &Deployment{
		ID:       dj.ID,
		Name:     dj.Name,
		Calendar: cal,
		Unit:     unit,
		Decimals: dj.Token.Decimals,
		Config: generic.ProcessorConfig{
			GracePeriod:      dj.GracePeriod,
			OperationsWallet: generic.Address(dj.Wallets.Operations),
			RewardWallet:     generic.Address(dj.Wallets.Reward),
			Self:             generic.Address(dj.Wallets.Processor),
			Owner:            generic.Address(dj.Wallets.Owner),
			Policy:           policy,
			Schedule:         schedule,
		},
	}, nil
}

// ToJSON converts a Deployment back to DeploymentJSON, in whole tokens.
func (f *DeploymentFactory) ToJSON(d *Deployment) DeploymentJSON {
	scale := decimal.New(1, d.Decimals)
	s := d.Config.Schedule

	dj := DeploymentJSON{
		ID:          d.ID,
		Name:        d.Name,
		GracePeriod: d.Config.GracePeriod,
		Token:       TokenJSON{Symbol: string(d.Unit), Decimals: d.Decimals},
		Wallets: WalletsJSON{
			Operations: string(d.Config.OperationsWallet),
			Reward:     string(d.Config.RewardWallet),
			Processor:  string(d.Config.Self),
			Owner:      string(d.Config.Owner),
		},
		Schedule: ScheduleJSON{
			WalletFloor:   Quantity{s.WalletFloor.Value.Div(scale)},
			WalletPercent: Quantity{s.WalletPercent},
			WalletCap:     Quantity{s.WalletCap.Value.Div(scale)},
			RewardPercent: Quantity{s.RewardPercent},
		},
		Policy: string(d.Config.Policy),
	}

	if _, ok := deployments.Calendar(d.Calendar.Name); ok {
		dj.Calendar = CalendarJSON{Preset: d.Calendar.Name}
	} else {
		dj.Calendar = CalendarJSON{
			UnitsPerPeriod:  d.Calendar.UnitsPerPeriod,
			SecondsPerUnit:  d.Calendar.SecondsPerUnit,
			CycleMode:       string(d.Calendar.CycleMode),
			PeriodsPerCycle: d.Calendar.PeriodsPerCycle,
			ConstantCycle:   uint64(d.Calendar.ConstantCycle),
		}
		if d.Calendar.MaxTimestamp != 0 {
			dj.Calendar.MaxYear = generic.GregorianYear(d.Calendar.MaxTimestamp)
		}
	}
	return dj
}

// ToBaseUnits scales a whole-token quantity by the deployment's decimals.
func (d *Deployment) ToBaseUnits(whole decimal.Decimal) generic.Amount {
	return generic.NewAmount(whole.Mul(decimal.New(1, d.Decimals)), d.Unit)
}

// FromBaseUnits converts a base-unit amount to whole tokens.
func (d *Deployment) FromBaseUnits(a generic.Amount) decimal.Decimal {
	return a.Value.Div(decimal.New(1, d.Decimals))
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseCalendar(cj CalendarJSON) (generic.PeriodCalendar, error) {
	if cj.Preset != "" {
		cal, ok := deployments.Calendar(cj.Preset)
		if !ok {
			return generic.PeriodCalendar{}, &generic.ConfigurationError{
				Field:  "calendar.preset",
				Reason: fmt.Sprintf("unknown calendar %q", cj.Preset),
			}
		}
		return cal, nil
	}

	cal := generic.PeriodCalendar{
		Name:            "custom",
		UnitsPerPeriod:  cj.UnitsPerPeriod,
		SecondsPerUnit:  cj.SecondsPerUnit,
		CycleMode:       parseCycleMode(cj.CycleMode),
		PeriodsPerCycle: cj.PeriodsPerCycle,
		ConstantCycle:   generic.CycleIdx(cj.ConstantCycle),
	}
	if cal.SecondsPerUnit == 0 {
		cal.SecondsPerUnit = 1
	}
	if cj.MaxYear != 0 {
		cal.MaxTimestamp = generic.GregorianYearStart(cj.MaxYear+1) - 1
	}
	return cal, nil
}

func parseCycleMode(s string) generic.CycleMode {
	switch s {
	case "", "fixed":
		return generic.CycleFixed
	case "gregorian", "calendar_year":
		return generic.CycleGregorian
	case "constant", "none":
		return generic.CycleConstant
	default:
		return generic.CycleMode(s) // rejected by Validate
	}
}
