// Package dispatch turns inbound chat messages into command executions.
//
// Each message is handled on its own goroutine:
//
//	Received → Normalized → Resolved → Authorized → Executed | Rejected | Skipped
//
// Messages that are not commands, or that come from a blocklisted sender or
// group, are skipped silently. Unknown command names are dropped with a
// debug log. Denials produce a reason-specific reply quoting the triggering
// message. Handler errors and panics are recovered here, logged with the
// invocation id, command and sender, and answered with a generic failure
// reply; they never reach the intake loop.
//
// Group roles are only fetched from the bridge when a command needs them
// and the chat is a group. A metadata failure counts as "not an admin".
//
// Every terminal outcome is published to the events hub and written to the
// audit log when those are configured.
package dispatch
