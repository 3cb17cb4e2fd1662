// Package mailer ships two implementations of the engine's Mailer
// interface: direct SMTP delivery and an AMQP publisher that hands the
// message to an out-of-process delivery worker.
package mailer
