// Package mcu implements the serial protocol engine of the station's thermal
// controller (MCU): the request/acknowledge/completion handshake, the command
// table and the domain operations built on top of it.
//
// # Protocol Overview
//
// The host sends one request frame at a time (see package frame for the wire
// format). Every request is answered by an acknowledge frame carrying the
// same command code. Thermal commands are additionally answered by a later
// completion frame once the physical condition is reached:
//
//   - 0x0B: operating temperature reached (standby heating, set operating temperature)
//   - 0x0D: cooling temperature reached (set cooling temperature)
//   - 0x0C: standby cooling complete (start standby cooling)
//
// After power-up the firmware announces itself with the short frame
// FF FF 00 00 FE FE.
//
// # Timeouts
//
//   - Ack timeout: polled at about 1 ms granularity, 5 s by default.
//   - Completion timeout: polled at about 10 ms granularity, per command,
//     from 10 s (heating) up to 120 s (standby cooling).
//   - Boot timeout: 60 s by default.
//
// A completion timeout is reported as a ProtocolTimeoutError whose Attempted
// method returns true: the command was accepted and its effect may be under
// way, so callers should re-query state instead of resending blindly.
//
// # Leftover Frames
//
// While waiting for a completion, an unrelated frame is parked in a single
// slot mailbox. A second unrelated frame overflows it and fails the exchange
// with a ProtocolViolationError. The slot is emptied, with a warning, before
// every new request.
//
// # Concurrency
//
// A Client owns its transport and performs all line I/O on one worker
// goroutine. Callers block in Exchange until the worker answers or their
// context is done; a second concurrent command fails with
// ErrExchangeInProgress.
package mcu
