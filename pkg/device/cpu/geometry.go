package cpu

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type localHit struct {
	t        float32
	normal   mgl32.Vec3
	color    mgl32.Vec4
	hasColor bool
}

// triangle intersects r with one triangle using the Möller–Trumbore test and
// returns the distance and barycentric coordinates.
func triangle(r ray, v0, v1, v2 mgl32.Vec3) (t, u, v float32, ok bool) {
	e1 := v1.Sub(v0)
	e2 := v2.Sub(v0)
	h := r.dir.Cross(e2)
	a := e1.Dot(h)
	if math32.Abs(a) < 1e-9 {
		return 0, 0, 0, false
	}
	f := 1 / a
	s := r.origin.Sub(v0)
	u = f * s.Dot(h)
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(e1)
	v = f * r.dir.Dot(q)
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = f * e2.Dot(q)
	return t, u, v, true
}

func (m *meshData) intersect(r ray, tmin, tmax float32) (localHit, bool) {
	prim, t := m.tree.closest(r, tmin, tmax, func(i int32, _ float32) (float32, bool) {
		t, _, _, ok := triangle(r,
			m.positions[m.index[3*i]],
			m.positions[m.index[3*i+1]],
			m.positions[m.index[3*i+2]])
		return t, ok
	})
	if prim < 0 {
		return localHit{}, false
	}
	i0, i1, i2 := m.index[3*prim], m.index[3*prim+1], m.index[3*prim+2]
	_, bu, bv, _ := triangle(r, m.positions[i0], m.positions[i1], m.positions[i2])
	w := 1 - bu - bv

	h := localHit{t: t}
	if m.normals != nil {
		h.normal = m.normals[i0].Mul(w).Add(m.normals[i1].Mul(bu)).Add(m.normals[i2].Mul(bv))
	}
	if h.normal.Len() == 0 {
		h.normal = m.positions[i1].Sub(m.positions[i0]).Cross(m.positions[i2].Sub(m.positions[i0]))
	}
	if m.colors != nil {
		h.color = m.colors[i0].Mul(w).Add(m.colors[i1].Mul(bu)).Add(m.colors[i2].Mul(bv))
		h.hasColor = true
	}
	return h, true
}

func (s *sphereData) intersect(r ray, tmin, tmax float32) (localHit, bool) {
	sphere := func(i int32) (float32, bool) {
		oc := r.origin.Sub(s.centers[i])
		a := r.dir.Dot(r.dir)
		b := oc.Dot(r.dir)
		c := oc.Dot(oc) - s.radii[i]*s.radii[i]
		disc := b*b - a*c
		if disc < 0 {
			return 0, false
		}
		sq := math32.Sqrt(disc)
		if t := (-b - sq) / a; t > tmin && t < tmax {
			return t, true
		}
		if t := (-b + sq) / a; t > tmin && t < tmax {
			return t, true
		}
		return 0, false
	}
	prim, t := s.tree.closest(r, tmin, tmax, func(i int32, _ float32) (float32, bool) {
		return sphere(i)
	})
	if prim < 0 {
		return localHit{}, false
	}
	h := localHit{t: t, normal: r.at(t).Sub(s.centers[prim])}
	if s.colors != nil {
		h.color, h.hasColor = s.colors[prim], true
	}
	return h, true
}

func (p *planeData) intersect(r ray, tmin, tmax float32) (localHit, bool) {
	best := localHit{t: tmax}
	found := false
	for _, c := range p.coefficients {
		n := mgl32.Vec3{c[0], c[1], c[2]}
		den := n.Dot(r.dir)
		if math32.Abs(den) < 1e-9 {
			continue
		}
		t := -(n.Dot(r.origin) + c[3]) / den
		if t <= tmin || t >= best.t {
			continue
		}
		if p.bounds != nil && !p.bounds.contains(r.at(t)) {
			continue
		}
		best = localHit{t: t, normal: n}
		found = true
	}
	return best, found
}

func (s *surface) intersect(r ray, tmin, tmax float32) (localHit, bool) {
	if !s.infinite {
		if _, _, ok := s.bounds.intersect(r, tmin, tmax); !ok {
			return localHit{}, false
		}
	}
	switch {
	case s.mesh != nil:
		return s.mesh.intersect(r, tmin, tmax)
	case s.spheres != nil:
		return s.spheres.intersect(r, tmin, tmax)
	case s.plane != nil:
		return s.plane.intersect(r, tmin, tmax)
	case s.iso != nil:
		t, n, ok := s.iso.intersect(r, tmin, tmax)
		return localHit{t: t, normal: n}, ok
	}
	return localHit{}, false
}
