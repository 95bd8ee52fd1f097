// Package scheduler runs the reminder poll loop.
//
// Every poll interval a tick loads the event lists, sweeps expired dedup
// flags, evaluates the daily digest window and the lead windows of every
// weekly event, and hands each firing reminder to the notifier. A second
// cron entry refreshes the boards.
//
// Dedup state lives in memory only; a restart forgets which windows were
// served.
package scheduler
