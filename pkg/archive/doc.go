// Package archive copies finished step logs to S3 compatible object storage
// so the run log can point at them after the local log dir is gone.
package archive
