// Package campaign runs named bulk sends on a schedule.
//
// Schedules are cron expressions, fixed intervals, or HH:MM shorthands.
// Interval campaigns get a randomized startup spread so several campaigns
// never fire in lockstep right after boot. Fires that land while another
// run holds the session are skipped, not queued.
package campaign
