package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/config"
)

// UnlimitedCredits is the balance written for paid plans. Paid accounts also
// carry the unlimited flag, so debits never exhaust them.
const UnlimitedCredits int64 = 999999

// GrantTable maps a plan to the credits it receives at each monthly reset.
type GrantTable map[accountdomain.Plan]int64

// DefaultGrantTable is the authoritative grant table; plans.yml may override
// amounts but never add plans.
var DefaultGrantTable = GrantTable{
	accountdomain.PlanFree:  50,
	accountdomain.PlanPro:   500,
	accountdomain.PlanElite: 9999,
}

func (t GrantTable) AmountFor(plan accountdomain.Plan) (int64, error) {
	amount, ok := t[plan]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}
	return amount, nil
}

// DefaultCatalog renders the default grant table as plan catalog config.
func DefaultCatalog() config.PlanCatalog {
	grants := make(map[string]int64, len(DefaultGrantTable))
	for plan, amount := range DefaultGrantTable {
		grants[string(plan)] = amount
	}
	return config.PlanCatalog{Grants: grants}
}

// GrantTableFrom overlays catalog amounts for known plans onto the defaults.
func GrantTableFrom(catalog config.PlanCatalog) GrantTable {
	table := make(GrantTable, len(DefaultGrantTable))
	for plan, amount := range DefaultGrantTable {
		table[plan] = amount
	}
	for name, amount := range catalog.Grants {
		plan, ok := accountdomain.ParsePlan(name)
		if !ok || amount < 0 {
			continue
		}
		table[plan] = amount
	}
	return table
}

type Balance struct {
	AccountID           snowflake.ID       `json:"account_id"`
	Plan                accountdomain.Plan `json:"plan"`
	Credits             int64              `json:"credits"`
	Unlimited           bool               `json:"unlimited"`
	MonthlyCreditsUsed  int64              `json:"monthly_credits_used"`
	LastCreditResetDate time.Time          `json:"last_credit_reset_date"`
}

// Covers reports whether the balance can pay for cost without going negative.
func (b Balance) Covers(cost int64) bool {
	return b.Unlimited || b.Credits >= cost
}

type ResetOutcome string

const (
	ResetOutcomeReset   ResetOutcome = "reset"
	ResetOutcomeSkipped ResetOutcome = "skipped"
	ResetOutcomeFailed  ResetOutcome = "failed"
)

type ResetResult struct {
	AccountID snowflake.ID `json:"account_id"`
	Outcome   ResetOutcome `json:"outcome"`
	Credits   int64        `json:"credits,omitempty"`
	Error     string       `json:"error,omitempty"`
	Err       error        `json:"-"`
}

// ResetSummary reports every account a bulk reset touched. A failed account
// never aborts the batch.
type ResetSummary struct {
	Cutoff     time.Time     `json:"cutoff"`
	Selected   int           `json:"selected"`
	Succeeded  int           `json:"succeeded"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Results    []ResetResult `json:"results"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

func (s ResetSummary) FailedIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, s.Failed)
	for _, r := range s.Results {
		if r.Outcome == ResetOutcomeFailed {
			ids = append(ids, r.AccountID)
		}
	}
	return ids
}

// Err joins the per-account failures, or returns nil when none failed.
func (s ResetSummary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Outcome == ResetOutcomeFailed && r.Err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", r.AccountID, r.Err))
		}
	}
	return errors.Join(errs...)
}

// FirstOfMonth returns midnight UTC on the first day of t's month.
func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
