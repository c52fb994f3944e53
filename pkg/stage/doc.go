// Package stage runs individual pipeline steps.
//
// A step wraps a Task, most often a CommandTask that runs the stage as its own
// process. The Runner gives each step a wall clock budget, records it in the
// run log and reduces whatever happened to a single SUCCESS or FAILED.
package stage
