package etl

import (
	"errors"
	"fmt"
)

// ErrNoSuchPipeline is returned when a trigger names an unconfigured pipeline.
var ErrNoSuchPipeline = errors.New("no such pipeline")

// TransformError indicates structurally malformed input, such as a missing
// required identifier. It is fatal to the whole run, unlike per-record
// validation failures, which are collected.
type TransformError struct {
	Field string
	Msg   string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed on field %q: %s", e.Field, e.Msg)
}

// LoadError indicates the load stage failed; the run's transaction is rolled
// back in full.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
