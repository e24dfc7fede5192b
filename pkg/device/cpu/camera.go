package cpu

import (
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraFrame struct {
	cam     *cameraData
	forward mgl32.Vec3
	right   mgl32.Vec3
	up      mgl32.Vec3
	tanHalf float32
}

func newCameraFrame(c *cameraData) cameraFrame {
	f := cameraFrame{cam: c, forward: c.direction}
	f.right = f.forward.Cross(c.up)
	if f.right.Len() == 0 {
		f.right, _ = basis(f.forward)
	}
	f.right = f.right.Normalize()
	f.up = f.right.Cross(f.forward).Normalize()
	f.tanHalf = math32.Tan(mgl32.DegToRad(c.fovy) * 0.5)
	return f
}

// ray generates the primary ray through normalized image coordinates
// (sx, sy) in [0,1], with sy = 0 at the bottom edge.
func (f cameraFrame) ray(sx, sy float32, rng *rand.Rand) ray {
	c := f.cam
	sx = c.imageStart[0] + sx*(c.imageEnd[0]-c.imageStart[0])
	sy = c.imageStart[1] + sy*(c.imageEnd[1]-c.imageStart[1])
	x, y := 2*sx-1, 2*sy-1

	switch c.subtype {
	case "orthographic":
		o := c.position.
			Add(f.right.Mul(x * c.height * c.aspect * 0.5)).
			Add(f.up.Mul(y * c.height * 0.5))
		return ray{origin: o, dir: f.forward}

	case "panoramic":
		phi := 2 * pi * (sx - 0.5)
		theta := pi * sy
		h := math32.Sin(theta)
		d := f.forward.Mul(h * math32.Cos(phi)).
			Add(f.right.Mul(h * math32.Sin(phi))).
			Add(f.up.Mul(-math32.Cos(theta)))
		return ray{origin: c.position, dir: d.Normalize()}
	}

	d := f.forward.
		Add(f.right.Mul(x * f.tanHalf * c.aspect)).
		Add(f.up.Mul(y * f.tanHalf)).
		Normalize()
	if c.aperture <= 0 || c.focusDistance <= 0 {
		return ray{origin: c.position, dir: d}
	}
	focus := c.position.Add(d.Mul(c.focusDistance / d.Dot(f.forward)))
	dx, dy := sampleDisk(rng)
	o := c.position.
		Add(f.right.Mul(dx * c.aperture)).
		Add(f.up.Mul(dy * c.aperture))
	return ray{origin: o, dir: focus.Sub(o).Normalize()}
}
