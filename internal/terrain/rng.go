package terrain

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/grid"
)

// ChunkSeed derives the generation seed of a chunk from the world seed and
// its coordinate only, so results never depend on generation order.
func ChunkSeed(worldSeed int64, coord grid.ChunkCoord) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(worldSeed))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(coord.X)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(coord.Z)))
	return xxhash.Sum64(buf[:])
}

// RNG is a small xorshift stream. It is not safe for concurrent use; every
// chunk gets its own.
type RNG struct {
	state uint64
}

func NewRNG(seed uint64) *RNG {
	state := mix64(seed)
	if state == 0 {
		state = 0x9e3779b97f4a7c15
	}
	return &RNG{state: state}
}

func (r *RNG) next() uint64 {
	r.state ^= r.state << 7
	r.state ^= r.state >> 9
	r.state ^= r.state << 8
	return r.state
}

// Uint64 returns the next raw value.
func (r *RNG) Uint64() uint64 {
	return r.next()
}

// Float64 returns a value in [0,1).
func (r *RNG) Float64() float64 {
	return float64(r.next()>>11) / (1 << 53)
}

func (r *RNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.next() % uint64(n))
}

// Range returns a value in [lo,hi).
func (r *RNG) Range(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// mix64 is the splitmix64 finaliser.
func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
