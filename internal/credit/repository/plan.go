package repository

import accountdomain "github.com/smallbiznis/promptly/internal/account/domain"

func accountPlan(value string) accountdomain.Plan {
	if plan, ok := accountdomain.ParsePlan(value); ok {
		return plan
	}
	return accountdomain.Plan(value)
}
