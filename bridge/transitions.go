package bridge

import "imuabridge/types"

// legal moves of an attempt; Idle is both the start and where aborted attempts go
var transitions = map[types.Phase][]types.Phase{
	types.PhaseIdle:                     {types.PhaseValidating},
	types.PhaseValidating:               {types.PhaseCheckingAuthorization, types.PhasePreparingSubmission, types.PhaseIdle},
	types.PhaseCheckingAuthorization:    {types.PhaseAwaitingAuthorization, types.PhasePreparingSubmission, types.PhaseIdle},
	types.PhaseAwaitingAuthorization:    {types.PhaseAuthorizing, types.PhaseIdle},
	types.PhaseAuthorizing:              {types.PhaseCheckingAuthorization, types.PhaseIdle},
	types.PhasePreparingSubmission:      {types.PhaseAwaitingUserConfirmation, types.PhaseIdle},
	types.PhaseAwaitingUserConfirmation: {types.PhaseSubmitting, types.PhaseIdle},
	types.PhaseSubmitting:               {types.PhaseAwaitingRelay, types.PhaseResolved, types.PhaseIdle},
	types.PhaseAwaitingRelay:            {types.PhaseResolved},
	types.PhaseResolved:                 {types.PhaseIdle},
}

func canTransition(from, to types.Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// busy phases have an operation in flight or wait on the relayer
func busy(p types.Phase) bool {
	switch p {
	case types.PhaseValidating,
		types.PhaseCheckingAuthorization,
		types.PhaseAuthorizing,
		types.PhasePreparingSubmission,
		types.PhaseSubmitting,
		types.PhaseAwaitingRelay:
		return true
	}
	return false
}

// cancellable phases are those before any chain interaction
func cancellable(p types.Phase) bool {
	return p == types.PhaseAwaitingUserConfirmation || p == types.PhaseAwaitingAuthorization
}

// abortedBySessionChange lists the phases an account change invalidates
func abortedBySessionChange(p types.Phase) bool {
	switch p {
	case types.PhaseValidating,
		types.PhaseCheckingAuthorization,
		types.PhaseAwaitingAuthorization,
		types.PhasePreparingSubmission,
		types.PhaseAwaitingUserConfirmation:
		return true
	}
	return false
}
