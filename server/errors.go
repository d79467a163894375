package server

import "errors"

// ErrAlreadyStarted mirrors the teacher's "transport already started" guard
// on a second Start call.
var ErrAlreadyStarted = errors.New("server: transport already started")

// ErrNoRequestID is returned by Send when neither the outbound message nor
// the send options carry a resolvable routing id (spec.md section 4.1
// "send": "Absence of a routing id fails"). This server has no standalone
// SSE stream to fall back to - see SPEC_FULL.md section 7.
var ErrNoRequestID = errors.New("server: send has no routing request id")

// ErrNoConnection is returned by Send when the routing id doesn't match any
// open HTTP response, e.g. the peer already disconnected.
var ErrNoConnection = errors.New("server: no open connection for request id")
