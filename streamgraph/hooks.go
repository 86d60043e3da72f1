package streamgraph

import "github.com/sketchgraph/streamcc/supernode"

// capabilityHooks are verification-only extension points, default no-ops
// in every production Graph. runBoruvka calls them round by round, and
// streamgraph's own test suite sets failRound to exercise the
// failure-injection scenario; production callers never see or set these
// directly.
type capabilityHooks struct {
	VerifySample func(round int, rep uint32, outcome supernode.Outcome)
	VerifyRound  func(round int, activeReps int)
	VerifyCC     func()
	failRound    int // nonzero: runBoruvka fails during this round, for testing backup/restore
}

func defaultHooks() capabilityHooks {
	return capabilityHooks{
		VerifySample: func(int, uint32, supernode.Outcome) {},
		VerifyRound:  func(int, int) {},
		VerifyCC:     func() {},
	}
}
