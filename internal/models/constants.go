package models

import "time"

const (
	// DefaultTimezone is used when app.timezone is empty.
	DefaultTimezone = "Europe/Rome"

	// DefaultLockTimeout bounds the wait for a schedule lock.
	DefaultLockTimeout = 2 * time.Second

	// DefaultLockTTL is the lease of a distributed schedule lock.
	DefaultLockTTL = 30 * time.Second

	// DefaultMaxRangeDays caps free-slot range queries.
	DefaultMaxRangeDays = 62

	// DefaultMaxHolidayDays caps a single holiday request.
	DefaultMaxHolidayDays = 366
)
