package model

import (
	"errors"
	"fmt"
)

// #region sentinels
// Sentinel errors matchable with errors.Is. The typed errors below wrap them.
var (
	ErrConfig    = errors.New("config error")
	ErrDimension = errors.New("dimension error")
	ErrShape     = errors.New("shape error")
	ErrLength    = errors.New("length error")
)

// #endregion sentinels

// #region config-error
// ConfigError reports a construction-time configuration problem.
type ConfigError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s=%d: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// #endregion config-error

// #region dimension-error
// DimensionError reports a feature width that does not match the encoder input.
type DimensionError struct {
	Got    int
	Want   int
	Detail string
}

func (e *DimensionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("dimension error: %s: got %d, want %d", e.Detail, e.Got, e.Want)
	}
	return fmt.Sprintf("dimension error: got %d, want %d", e.Got, e.Want)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimension }

// #endregion dimension-error

// #region shape-error
// ShapeError reports a graph whose structure cannot be encoded, such as an
// edge that references a node outside [0, NumNodes).
type ShapeError struct {
	Op       string
	Node     int
	NumNodes int
	Detail   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape error: %s: node %d, num nodes %d: %s", e.Op, e.Node, e.NumNodes, e.Detail)
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }

// #endregion shape-error

// #region length-error
// LengthError reports an embedding sequence of unusable length.
type LengthError struct {
	Got  int
	Want int
}

func (e *LengthError) Error() string {
	if e.Want > 0 {
		return fmt.Sprintf("length error: sequence length %d, want %d", e.Got, e.Want)
	}
	return fmt.Sprintf("length error: sequence length %d", e.Got)
}

func (e *LengthError) Is(target error) bool { return target == ErrLength }

// #endregion length-error
