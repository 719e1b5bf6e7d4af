// Package mac owns the RTS/CTS medium access state machine.
//
// Ownership boundary:
// - per-phase receive/validate logic and outcome codes
// - handshake sessions (initiator and responder roles)
// - statistics side effects of successful exchanges
//
// Wire framing lives in internal/mac/frame, address checks in
// internal/mac/addr, counters in internal/mac/stats. The radio itself is a
// radio.Transport supplied by the caller.
package mac
