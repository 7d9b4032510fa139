package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Account polling tick, every minute; each account is fetched only when its own interval has elapsed
	CronSchedulePollAccounts string `env:"CRON_SCHEDULE_POLL_ACCOUNTS" envDefault:"30 * * * * *"`
	// Integrity sweep over stored documents, daily at 03:00
	CronScheduleIntegritySweep string `env:"CRON_SCHEDULE_INTEGRITY_SWEEP" envDefault:"0 0 3 * * *"`
	// Retry emails left in error state, hourly
	CronScheduleRetryFailed string `env:"CRON_SCHEDULE_RETRY_FAILED" envDefault:"0 15 * * * *"`
}
