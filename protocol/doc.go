// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the MQTT transport framing and connection engine for
// hioload-mqtt.
//
// Designed for event-driven consumers: a resumable incremental decoder,
// a loop-affine connection state machine, and a hook interface through
// which all lifecycle and frame events are reported.
//
// Includes:
//   - Fixed header and remaining-length codec over pooled buffers
//   - Resumable frame decoding across arbitrary chunk boundaries
//   - Dial / adopt / TLS / teardown lifecycle state machine
//   - Consumer hook dispatch with header and body veto points
package protocol
