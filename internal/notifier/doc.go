// Package notifier delivers reminders to the chat transport.
//
// The scheduler calls SendReminder synchronously from its tick. Each call is
// a single attempt: the service spaces sends with a token bucket, bounds the
// call with a timeout and reports failures as ErrDeliveryFailed, but never
// retries. A small in-memory history backs the /status command.
package notifier
