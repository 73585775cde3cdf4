// Package exitcodes defines the standard exit codes used by the test
// bridge.
//
// * Success (0): all tests passed
// * TestFailure (1): one or more tests failed or errored
// * RuntimeErr (2): runtime errors such as configuration problems,
//   a runner that cannot be spawned, or transport failures
package exitcodes

const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
