package cpu

import (
	"math"
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	epsilon = 1e-4
	pi      = math.Pi
)

type ray struct {
	origin mgl32.Vec3
	dir    mgl32.Vec3
}

func (r ray) at(t float32) mgl32.Vec3 {
	return r.origin.Add(r.dir.Mul(t))
}

// transform maps the ray through m without renormalizing the direction, so
// distances along the result match distances along r.
func (r ray) transform(m mgl32.Mat4) ray {
	return ray{
		origin: m.Mul4x1(r.origin.Vec4(1)).Vec3(),
		dir:    m.Mul4x1(r.dir.Vec4(0)).Vec3(),
	}
}

type aabb struct {
	min, max mgl32.Vec3
}

func emptyAABB() aabb {
	inf := math32.Inf(1)
	return aabb{
		min: mgl32.Vec3{inf, inf, inf},
		max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

func (b aabb) empty() bool {
	return b.min[0] > b.max[0] || b.min[1] > b.max[1] || b.min[2] > b.max[2]
}

func (b aabb) extend(p mgl32.Vec3) aabb {
	for i := 0; i < 3; i++ {
		b.min[i] = math32.Min(b.min[i], p[i])
		b.max[i] = math32.Max(b.max[i], p[i])
	}
	return b
}

func (b aabb) union(o aabb) aabb {
	if o.empty() {
		return b
	}
	return b.extend(o.min).extend(o.max)
}

func (b aabb) center() mgl32.Vec3 {
	return b.min.Add(b.max).Mul(0.5)
}

func (b aabb) contains(p mgl32.Vec3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.min[i]-epsilon || p[i] > b.max[i]+epsilon {
			return false
		}
	}
	return true
}

// transform returns the box enclosing the eight transformed corners.
func (b aabb) transform(m mgl32.Mat4) aabb {
	if b.empty() {
		return b
	}
	out := emptyAABB()
	for i := 0; i < 8; i++ {
		c := mgl32.Vec3{b.min[0], b.min[1], b.min[2]}
		if i&1 != 0 {
			c[0] = b.max[0]
		}
		if i&2 != 0 {
			c[1] = b.max[1]
		}
		if i&4 != 0 {
			c[2] = b.max[2]
		}
		out = out.extend(m.Mul4x1(c.Vec4(1)).Vec3())
	}
	return out
}

// intersect clips [tmin, tmax] against the box using the slab method.
func (b aabb) intersect(r ray, tmin, tmax float32) (float32, float32, bool) {
	for i := 0; i < 3; i++ {
		if r.dir[i] == 0 {
			if r.origin[i] < b.min[i] || r.origin[i] > b.max[i] {
				return 0, 0, false
			}
			continue
		}
		inv := 1 / r.dir[i]
		t0 := (b.min[i] - r.origin[i]) * inv
		t1 := (b.max[i] - r.origin[i]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = math32.Max(tmin, t0)
		tmax = math32.Min(tmax, t1)
		if tmax < tmin {
			return 0, 0, false
		}
	}
	return tmin, tmax, true
}

func mulv(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func clamp(x, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, x))
}

func luminance(c mgl32.Vec3) float32 {
	return 0.2126*c[0] + 0.7152*c[1] + 0.0722*c[2]
}

func maxComponent(c mgl32.Vec3) float32 {
	return math32.Max(c[0], math32.Max(c[1], c[2]))
}

// basis returns two unit vectors orthogonal to n and to each other.
func basis(n mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	a := mgl32.Vec3{1, 0, 0}
	if math32.Abs(n[0]) > 0.9 {
		a = mgl32.Vec3{0, 1, 0}
	}
	t := n.Cross(a).Normalize()
	return t, n.Cross(t)
}

// cosineSample draws a direction around n with a cosine weighted density.
func cosineSample(n mgl32.Vec3, rng *rand.Rand) mgl32.Vec3 {
	u1, u2 := rng.Float32(), rng.Float32()
	r := math32.Sqrt(u1)
	phi := 2 * pi * u2
	t, b := basis(n)
	x, y := r*math32.Cos(phi), r*math32.Sin(phi)
	z := math32.Sqrt(math32.Max(0, 1-u1))
	return t.Mul(x).Add(b.Mul(y)).Add(n.Mul(z)).Normalize()
}

func reflect(d, n mgl32.Vec3) mgl32.Vec3 {
	return d.Sub(n.Mul(2 * d.Dot(n)))
}

// sampleDisk returns a uniform point on the unit disk.
func sampleDisk(rng *rand.Rand) (float32, float32) {
	r := math32.Sqrt(rng.Float32())
	phi := 2 * pi * rng.Float32()
	return r * math32.Cos(phi), r * math32.Sin(phi)
}
