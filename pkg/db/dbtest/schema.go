package dbtest

// SQLite renditions of the postgres migrations, for repository tests.
const (
	AccountsDDL = `CREATE TABLE accounts (
		id INTEGER PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		credits INTEGER NOT NULL CHECK (credits >= 0),
		unlimited BOOLEAN NOT NULL DEFAULT 0,
		monthly_credits_used INTEGER NOT NULL DEFAULT 0,
		last_credit_reset_date DATETIME NOT NULL,
		plan TEXT NOT NULL DEFAULT 'free',
		subscription_id TEXT,
		subscription_status TEXT,
		subscription_ends_at DATETIME,
		stripe_customer_id TEXT UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`

	SubscriptionsDDL = `CREATE TABLE subscriptions (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		provider TEXT NOT NULL,
		provider_subscription_id TEXT NOT NULL UNIQUE,
		provider_customer_id TEXT NOT NULL,
		plan TEXT NOT NULL,
		status TEXT NOT NULL,
		current_period_start DATETIME,
		current_period_end DATETIME,
		trial_start DATETIME,
		trial_end DATETIME,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT 0,
		canceled_at DATETIME,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`

	PaymentsDDL = `CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL UNIQUE,
		provider_invoice_id TEXT,
		provider_subscription_id TEXT,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`

	PaymentEventsDDL = `CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (provider, provider_event_id)
	)`

	DeferredDebitsDDL = `CREATE TABLE deferred_debits (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		operation_id TEXT NOT NULL UNIQUE,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		settled_at DATETIME
	)`
)

// All returns every table definition in dependency order.
func All() []string {
	return []string{AccountsDDL, SubscriptionsDDL, PaymentsDDL, PaymentEventsDDL, DeferredDebitsDDL}
}
