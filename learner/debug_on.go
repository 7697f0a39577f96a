//go:build gddebug

package learner

// debugChecks turns Learn precondition violations into panics.
const debugChecks = true
