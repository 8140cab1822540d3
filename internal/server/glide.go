package server

import (
	"math"
	"sync"
	"time"

	"github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/world"
)

// ViewpointSource supplies the camera state the manager streams around.
type ViewpointSource interface {
	Advance(delta time.Duration)
	Viewpoint() world.Viewpoint
}

// Glide is a scripted hang-glider flight: constant airspeed, a steady turn
// and a slow sink that stops at a floor altitude. Heading 0 points along +X.
type Glide struct {
	mu       sync.Mutex
	x, y, z  float64
	speed    float64
	heading  float64
	turnRate float64
	sinkRate float64
	floor    float64
}

type GlideParams struct {
	X, Y, Z  float64
	Speed    float64 // world units per second
	Heading  float64 // radians
	TurnRate float64 // radians per second
	SinkRate float64 // world units per second
	Floor    float64
}

func NewGlide(p GlideParams) *Glide {
	return &Glide{
		x: p.X, y: p.Y, z: p.Z,
		speed:    p.Speed,
		heading:  p.Heading,
		turnRate: p.TurnRate,
		sinkRate: p.SinkRate,
		floor:    p.Floor,
	}
}

func (g *Glide) Advance(delta time.Duration) {
	dt := delta.Seconds()
	if dt <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.heading = math.Mod(g.heading+g.turnRate*dt, 2*math.Pi)
	g.x += math.Cos(g.heading) * g.speed * dt
	g.z += math.Sin(g.heading) * g.speed * dt
	g.y = math.Max(g.floor, g.y-g.sinkRate*dt)
}

func (g *Glide) Viewpoint() world.Viewpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	vp := world.Viewpoint{
		X: g.x, Y: g.y, Z: g.z,
		VX: math.Cos(g.heading) * g.speed,
		VZ: math.Sin(g.heading) * g.speed,
	}
	if g.y > g.floor {
		vp.VY = -g.sinkRate
	}
	return vp
}
