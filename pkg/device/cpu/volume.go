package cpu

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func (g *gridData) at(x, y, z int) float32 {
	return g.values[x+g.dims[0]*(y+g.dims[1]*z)]
}

// sample interpolates the grid trilinearly at a local position.
func (g *gridData) sample(p mgl32.Vec3) (float32, bool) {
	if !g.bounds.contains(p) {
		return 0, false
	}
	var i [3]int
	var f [3]float32
	for a := 0; a < 3; a++ {
		c := clamp((p[a]-g.origin[a])/g.spacing[a], 0, float32(g.dims[a]-1))
		fl := math32.Floor(c)
		i[a] = int(fl)
		if i[a] >= g.dims[a]-1 {
			i[a] = g.dims[a] - 2
		}
		f[a] = c - float32(i[a])
	}
	lerp := func(a, b, t float32) float32 { return a + (b-a)*t }
	x0, y0, z0 := i[0], i[1], i[2]
	c00 := lerp(g.at(x0, y0, z0), g.at(x0+1, y0, z0), f[0])
	c10 := lerp(g.at(x0, y0+1, z0), g.at(x0+1, y0+1, z0), f[0])
	c01 := lerp(g.at(x0, y0, z0+1), g.at(x0+1, y0, z0+1), f[0])
	c11 := lerp(g.at(x0, y0+1, z0+1), g.at(x0+1, y0+1, z0+1), f[0])
	return lerp(lerp(c00, c10, f[1]), lerp(c01, c11, f[1]), f[2]), true
}

// gradient estimates the field gradient with central differences.
func (g *gridData) gradient(p mgl32.Vec3) mgl32.Vec3 {
	var out mgl32.Vec3
	for a := 0; a < 3; a++ {
		h := g.spacing[a] * 0.5
		d := mgl32.Vec3{}
		d[a] = h
		v1, ok1 := g.sample(p.Add(d))
		v0, ok0 := g.sample(p.Sub(d))
		if !ok1 {
			v1, _ = g.sample(p)
		}
		if !ok0 {
			v0, _ = g.sample(p)
		}
		out[a] = (v1 - v0) / (2 * h)
	}
	return out
}

func (g *gridData) step() float32 {
	return math32.Min(g.spacing[0], math32.Min(g.spacing[1], g.spacing[2])) * 0.5
}

// lookup maps a field value to color and opacity.
func (tf *transferFunctionData) lookup(v float32) (mgl32.Vec3, float32) {
	lo, hi := tf.valueRange[0], tf.valueRange[1]
	var x float32
	if hi > lo {
		x = clamp((v-lo)/(hi-lo), 0, 1)
	}
	return sampleVec3(tf.colors, x), sampleFloat(tf.opacity, x)
}

func sampleFloat(v []float32, x float32) float32 {
	if len(v) == 1 {
		return v[0]
	}
	f := x * float32(len(v)-1)
	i := int(f)
	if i >= len(v)-1 {
		return v[len(v)-1]
	}
	t := f - float32(i)
	return v[i]*(1-t) + v[i+1]*t
}

func sampleVec3(v []mgl32.Vec3, x float32) mgl32.Vec3 {
	if len(v) == 1 {
		return v[0]
	}
	f := x * float32(len(v)-1)
	i := int(f)
	if i >= len(v)-1 {
		return v[len(v)-1]
	}
	t := f - float32(i)
	return v[i].Mul(1 - t).Add(v[i+1].Mul(t))
}

// color samples a volume texture at a local position.
func (vt *volumeTextureData) color(p mgl32.Vec3) (mgl32.Vec3, bool) {
	v, ok := vt.volume.sample(p)
	if !ok {
		return mgl32.Vec3{}, false
	}
	c, _ := vt.tf.lookup(v)
	return c, true
}

// isosurface marches r through the grid and returns the first crossing of
// any isovalue together with the local surface normal.
func (iso *isosurfaceData) intersect(r ray, tmin, tmax float32) (float32, mgl32.Vec3, bool) {
	g := iso.volume
	t0, t1, ok := g.bounds.intersect(r, tmin, tmax)
	if !ok {
		return 0, mgl32.Vec3{}, false
	}
	dirLen := r.dir.Len()
	if dirLen == 0 {
		return 0, mgl32.Vec3{}, false
	}
	dt := g.step() / dirLen

	prev := make([]float32, len(iso.isovalues))
	v, _ := g.sample(r.at(t0))
	for i, iv := range iso.isovalues {
		prev[i] = v - iv
	}
	tPrev := t0
	for t := t0 + dt; t <= t1+dt; t += dt {
		tc := math32.Min(t, t1)
		v, _ := g.sample(r.at(tc))
		for i, iv := range iso.isovalues {
			d := v - iv
			if (prev[i] < 0) != (d < 0) && prev[i] != d {
				th := tPrev + (tc-tPrev)*prev[i]/(prev[i]-d)
				n := g.gradient(r.at(th))
				if n.Len() == 0 {
					n = r.dir.Mul(-1)
				}
				return th, n.Normalize(), true
			}
			prev[i] = d
		}
		tPrev = tc
		if tc >= t1 {
			break
		}
	}
	return 0, mgl32.Vec3{}, false
}

// composite integrates the volume front to back over [tmin, tmax] and
// returns premultiplied color and accumulated opacity.
func (m *volumetricModelData) composite(r ray, tmin, tmax float32) (mgl32.Vec3, float32) {
	g := m.volume
	t0, t1, ok := g.bounds.intersect(r, tmin, tmax)
	if !ok {
		return mgl32.Vec3{}, 0
	}
	dirLen := r.dir.Len()
	if dirLen == 0 {
		return mgl32.Vec3{}, 0
	}
	step := g.step() / m.samplingRate
	dt := step / dirLen

	var color mgl32.Vec3
	var alpha float32
	for t := t0 + dt*0.5; t < t1 && alpha < 0.99; t += dt {
		v, ok := g.sample(r.at(t))
		if !ok {
			continue
		}
		c, op := m.tf.lookup(v)
		a := 1 - math32.Exp(-op*m.densityScale*step)
		w := (1 - alpha) * a
		color = color.Add(c.Mul(w))
		alpha += w
	}
	return color, alpha
}
