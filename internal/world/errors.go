package world

import (
	"errors"
	"fmt"
	"math"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
)

// HeightUnknown is returned by height queries whose owning chunk is not
// resident. Callers treat it as "no ground here".
var HeightUnknown = math.Inf(-1)

var (
	// ErrNotResident reports a height query routed to a chunk that is not in
	// the index.
	ErrNotResident = errors.New("chunk not resident")
	// ErrQueueStarved reports a load queue growing faster than it drains.
	ErrQueueStarved = errors.New("load queue starved")
)

// GenerationError wraps a failed attempt at rasterizing a chunk. The chunk is
// retried on a later tick until the attempt limit is reached.
type GenerationError struct {
	Coord   grid.ChunkCoord
	Attempt int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate chunk %v (attempt %d): %v", e.Coord, e.Attempt, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// DecorationError wraps a failed placement step. The chunk stays resident
// with terrain only.
type DecorationError struct {
	Coord grid.ChunkCoord
	Err   error
}

func (e *DecorationError) Error() string {
	return fmt.Sprintf("decorate chunk %v: %v", e.Coord, e.Err)
}

func (e *DecorationError) Unwrap() error { return e.Err }

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
