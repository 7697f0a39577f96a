//go:build !gddebug

package learner

const debugChecks = false
