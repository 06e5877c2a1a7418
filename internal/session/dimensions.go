package session

import (
	"errors"
	"fmt"
)

// Terminal size bounds.
const (
	MinCols     = 40
	MaxCols     = 500
	MinRows     = 10
	MaxRows     = 200
	DefaultCols = 120
	DefaultRows = 30
)

var ErrInvalidDimensions = errors.New("invalid dimensions")

// Dimensions is a terminal size in character cells.
type Dimensions struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// NewDimensions returns the given size or an error if it is out of bounds.
func NewDimensions(cols, rows int) (Dimensions, error) {
	if cols < MinCols || cols > MaxCols {
		return Dimensions{}, fmt.Errorf("%w: cols must be %d-%d, got %d", ErrInvalidDimensions, MinCols, MaxCols, cols)
	}
	if rows < MinRows || rows > MaxRows {
		return Dimensions{}, fmt.Errorf("%w: rows must be %d-%d, got %d", ErrInvalidDimensions, MinRows, MaxRows, rows)
	}
	return Dimensions{Cols: cols, Rows: rows}, nil
}

// ClampDimensions forces cols and rows into bounds.
func ClampDimensions(cols, rows int) Dimensions {
	return Dimensions{
		Cols: min(max(cols, MinCols), MaxCols),
		Rows: min(max(rows, MinRows), MaxRows),
	}
}

// DefaultDimensions returns 120x30.
func DefaultDimensions() Dimensions {
	return Dimensions{Cols: DefaultCols, Rows: DefaultRows}
}
