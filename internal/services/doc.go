// Package services holds cross-cutting service concerns: the pipeline error
// classification (error kinds and wrapping) and context annotations consumed
// by structured logging.
package services
