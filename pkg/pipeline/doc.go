// Package pipeline sequences stages.
//
// A Controller hands each configured step to a stage.Runner, one after the
// other, and reports the run as successful only when every step succeeded.
package pipeline
