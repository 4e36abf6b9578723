package engine

import "errors"

var ErrInvalidConfig = errors.New("invalid session config")
var ErrDuplicateParticipant = errors.New("duplicate participant")
var ErrUnknownParticipant = errors.New("unknown participant")
var ErrSessionClosed = errors.New("session closed")
var ErrSessionNotActive = errors.New("session not active")
var ErrInvalidTransition = errors.New("invalid state transition")
var ErrNotYourTurn = errors.New("not your turn")
var ErrDeadActor = errors.New("actor is dead")
var ErrAlreadyAlive = errors.New("participant already alive")
var ErrInvalidTarget = errors.New("invalid target")
var ErrResourceExhausted = errors.New("insufficient resources")
var ErrUnsupportedAction = errors.New("unsupported action kind")
var ErrUnknownSide = errors.New("unknown side")
var ErrLateJoinDisabled = errors.New("late join not allowed")
