package orchestrator

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

var (
	ErrSubmissionInvalid  = errors.New("submission is structurally invalid", j.C("ERR_8a41c6de2f90b317"))
	ErrWorkflowNotFound   = errors.New("workflow not found", j.C("ERR_53bd21e07a9c44f8"))
	ErrTaskNotFound       = errors.New("task not found", j.C("ERR_d97f30a2c5e18b64"))
	ErrDefinitionNotFound = errors.New("workflow definition not found", j.C("ERR_2c6e91b4d8f0a735"))
	ErrInvalidTransition  = errors.New("invalid status transition from current state", j.C("ERR_74f8e2a1903cbd56"))
	ErrStoreUnavailable   = errors.New("workflow store unavailable", j.C("ERR_e1b59c3f47d2a680"))
	ErrTaskNotFailed      = errors.New("task is not in a failed state", j.C("ERR_b30d72f5a8e4c19d"))
	ErrAgentNotCapable    = errors.New("agent does not support the requested action", j.C("ERR_47a9e0d138c6fb25"))
)
