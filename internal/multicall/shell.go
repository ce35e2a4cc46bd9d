package multicall

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// shellState is the two-state lifecycle of a deployless shell.
type shellState uint32

const (
	shellRunning shellState = iota
	shellTerminated
)

func (s shellState) String() string {
	switch s {
	case shellRunning:
		return "Running"
	case shellTerminated:
		return "Terminated"
	default:
		return "unknown"
	}
}

// Shell is a single-use execution context. It is constructed holding one
// raw request envelope, runs decode, dispatch and encode exactly once, and
// terminates by emitting either the encoded response buffer or a structured
// failure. A terminated shell cannot be run again.
type Shell struct {
	env      Environment
	envelope []byte
	logger   zerolog.Logger
	state    atomic.Uint32
}

// NewShell constructs a shell in the Running state around one envelope.
func NewShell(env Environment, envelope []byte, logger zerolog.Logger) *Shell {
	return &Shell{
		env:      env,
		envelope: envelope,
		logger:   logger.With().Str("component", "shell").Logger(),
	}
}

// State returns the current lifecycle state name.
func (s *Shell) State() string {
	return shellState(s.state.Load()).String()
}

// Run performs the one-shot decode → dispatch → encode pass and transitions
// the shell to Terminated. Failure kinds surface unchanged: InvalidTagError,
// PerCallFailureError and SimulationReport all carry their structured
// payloads to the caller. A second Run fails with ErrShellTerminated.
func (s *Shell) Run(ctx context.Context) ([]byte, error) {
	if !s.state.CompareAndSwap(uint32(shellRunning), uint32(shellTerminated)) {
		return nil, ErrShellTerminated
	}

	req, err := DecodeRequest(s.envelope)
	if err != nil {
		s.logger.Debug().Err(err).Msg("envelope rejected")
		return nil, err
	}

	resp, err := NewDispatcher(s.env, s.logger).Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return EncodeResponse(resp)
}

// Execute runs one envelope through a throwaway shell. This is the normal
// entry for deployless callers; the shell never escapes.
func Execute(ctx context.Context, env Environment, envelope []byte, logger zerolog.Logger) ([]byte, error) {
	return NewShell(env, envelope, logger).Run(ctx)
}
