package terrain

import "github.com/lucaslimouzin/deltaplane-simulator-sub000/internal/config"

// RGB is an 8-bit vertex color.
type RGB struct {
	R, G, B uint8
}

func parseColor(c config.Color) (RGB, error) {
	r, g, b, err := c.RGB()
	if err != nil {
		return RGB{}, err
	}
	return RGB{R: r, G: g, B: b}, nil
}

// Lerp blends towards o by t in [0,1].
func (c RGB) Lerp(o RGB, t float64) RGB {
	if t <= 0 {
		return c
	}
	if t >= 1 {
		return o
	}
	mix := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
	}
	return RGB{R: mix(c.R, o.R), G: mix(c.G, o.G), B: mix(c.B, o.B)}
}

// Shift adds delta to every channel, saturating at the channel limits.
func (c RGB) Shift(delta int) RGB {
	return RGB{R: shiftChannel(c.R, delta), G: shiftChannel(c.G, delta), B: shiftChannel(c.B, delta)}
}

func shiftChannel(v uint8, d int) uint8 {
	n := int(v) + d
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}
