package client

import "errors"

// ErrAlreadyStarted mirrors the server's guard: start() fails if any stream
// is already active (spec.md section 4.2 "start").
var ErrAlreadyStarted = errors.New("client: transport already started")

// ErrUnauthorized is returned when the auth provider fails to produce an
// AUTHORIZED outcome, either during startOrAuth's 401 retry, send's 401
// retry, or finishAuth.
var ErrUnauthorized = errors.New("client: unauthorized")
