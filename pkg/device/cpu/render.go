package cpu

import (
	"math/rand/v2"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type hit struct {
	t        float32
	point    mgl32.Vec3
	normal   mgl32.Vec3
	albedo   mgl32.Vec3
	emission mgl32.Vec3
	reflect  float32
	rough    float32
	transmit bool
}

func (fs *frameScene) intersect(r ray, tmin, tmax float32) (hit, bool) {
	best := hit{t: tmax}
	found := false
	for i := range fs.instances {
		p := &fs.instances[i]
		if !p.infinite {
			if _, _, ok := p.bounds.intersect(r, tmin, best.t); !ok {
				continue
			}
		}
		lr := r.transform(p.inv)
		for j := range p.surfaces {
			s := &p.surfaces[j]
			lh, ok := s.intersect(lr, tmin, best.t)
			if !ok || lh.t <= tmin || lh.t >= best.t {
				continue
			}
			found = true
			best = hit{
				t:        lh.t,
				point:    r.at(lh.t),
				normal:   p.normalXfm.Mul3x1(lh.normal).Normalize(),
				albedo:   s.material.albedo,
				emission: s.material.emission,
				reflect:  s.material.reflect,
				rough:    s.material.rough,
				transmit: s.material.transmit,
			}
			if best.normal.Dot(r.dir) > 0 {
				best.normal = best.normal.Mul(-1)
			}
			if s.color != nil {
				best.albedo = mulv(best.albedo, s.color.Vec3())
			}
			if lh.hasColor {
				best.albedo = mulv(best.albedo, lh.color.Vec3())
			}
			if s.volTex != nil {
				if c, ok := s.volTex.color(lr.at(lh.t)); ok {
					best.albedo = c
				}
			}
		}
	}
	return best, found
}

func (fs *frameScene) occluded(origin, dir mgl32.Vec3, dist float32) bool {
	_, ok := fs.intersect(ray{origin: origin, dir: dir}, epsilon, dist-epsilon)
	return ok
}

// composite blends every volume the ray crosses before tmax.
func (fs *frameScene) composite(r ray, tmin, tmax float32) (mgl32.Vec3, float32) {
	var color mgl32.Vec3
	var alpha float32
	for i := range fs.instances {
		p := &fs.instances[i]
		if len(p.volumes) == 0 {
			continue
		}
		if _, _, ok := p.bounds.intersect(r, tmin, tmax); !ok {
			continue
		}
		lr := r.transform(p.inv)
		for _, v := range p.volumes {
			c, a := v.composite(lr, tmin, tmax)
			color = color.Add(c.Mul(1 - alpha))
			alpha += a * (1 - alpha)
		}
	}
	return color, alpha
}

type frameTask struct {
	scene     *frameScene
	renderer  *rendererData
	camera    cameraFrame
	backplate *texture2DData
	width     int
	height    int
	seed      uint64
}

func (ft *frameTask) background(sx, sy float32) mgl32.Vec4 {
	if bp := ft.backplate; bp != nil {
		x := min(int(sx*float32(bp.size[0])), bp.size[0]-1)
		y := min(int(sy*float32(bp.size[1])), bp.size[1]-1)
		return bp.data[y*bp.size[0]+x]
	}
	return ft.renderer.background
}

// renderRow writes one jittered sample for every pixel of row y.
func (ft *frameTask) renderRow(y int, out []float32) {
	rng := rand.New(rand.NewPCG(ft.seed, uint64(y)))
	for x := 0; x < ft.width; x++ {
		sx := (float32(x) + rng.Float32()) / float32(ft.width)
		sy := (float32(y) + rng.Float32()) / float32(ft.height)
		r := ft.camera.ray(sx, sy, rng)

		var c mgl32.Vec4
		if ft.renderer.subtype == "pathtracer" {
			c = ft.pathtrace(r, sx, sy, rng)
		} else {
			c = ft.scivis(r, sx, sy, rng)
		}
		i := 4 * (y*ft.width + x)
		out[i], out[i+1], out[i+2], out[i+3] = c[0], c[1], c[2], c[3]
	}
}

func (ft *frameTask) tmin() float32 {
	return math32.Max(ft.camera.cam.nearClip, epsilon)
}

func (ft *frameTask) scivis(r ray, sx, sy float32, rng *rand.Rand) mgl32.Vec4 {
	tmin := ft.tmin()
	h, ok := ft.scene.intersect(r, tmin, math32.Inf(1))

	var color mgl32.Vec3
	var alpha float32
	tmax := math32.Inf(1)
	if ok {
		tmax = h.t
		color = h.emission.Add(mulv(h.albedo, ft.scene.ambient.Mul(ft.ambientOcclusion(h, rng)).Add(ft.direct(h))))
		alpha = 1
	} else {
		bg := ft.background(sx, sy)
		color, alpha = bg.Vec3(), bg[3]
	}

	vc, va := ft.scene.composite(r, tmin, tmax)
	color = vc.Add(color.Mul(1 - va))
	alpha = va + alpha*(1-va)
	return color.Vec4(alpha)
}

func (ft *frameTask) ambientOcclusion(h hit, rng *rand.Rand) float32 {
	n := ft.renderer.aoSamples
	if n <= 0 {
		return 1
	}
	origin := h.point.Add(h.normal.Mul(epsilon))
	blocked := 0
	for i := 0; i < n; i++ {
		if ft.scene.occluded(origin, cosineSample(h.normal, rng), ft.renderer.aoDistance) {
			blocked++
		}
	}
	return clamp(1-ft.renderer.aoIntensity*float32(blocked)/float32(n), 0, 1)
}

// direct sums the non-ambient light arriving at h.
func (ft *frameTask) direct(h hit) mgl32.Vec3 {
	var sum mgl32.Vec3
	origin := h.point.Add(h.normal.Mul(epsilon))
	for _, l := range ft.scene.lights {
		var dir mgl32.Vec3
		dist := math32.Inf(1)
		radiance := l.color.Mul(l.intensity)
		switch l.subtype {
		case "distant", "sunSky":
			dir = l.direction.Mul(-1)
		default:
			d := l.position.Sub(h.point)
			dist = d.Len()
			if dist == 0 {
				continue
			}
			dir = d.Mul(1 / dist)
			radiance = radiance.Mul(1 / (dist * dist))
		}
		cos := h.normal.Dot(dir)
		if cos <= 0 {
			continue
		}
		if ft.renderer.shadows && ft.scene.occluded(origin, dir, dist) {
			continue
		}
		sum = sum.Add(radiance.Mul(cos))
	}
	return sum
}

func (ft *frameTask) pathtrace(r ray, sx, sy float32, rng *rand.Rand) mgl32.Vec4 {
	primary, tmin := r, ft.tmin()
	throughput := mgl32.Vec3{1, 1, 1}
	var radiance mgl32.Vec3
	var alpha float32
	firstT := math32.Inf(1)

	depth := max(ft.renderer.maxPathLength, 1)
	for bounce := 0; bounce < depth; bounce++ {
		h, ok := ft.scene.intersect(r, tmin, math32.Inf(1))
		if !ok {
			if bounce == 0 {
				bg := ft.background(sx, sy)
				radiance, alpha = bg.Vec3(), bg[3]
			} else {
				radiance = radiance.Add(mulv(throughput, ft.scene.ambient))
			}
			break
		}
		if bounce == 0 {
			firstT, alpha = h.t, 1
		}
		radiance = radiance.Add(mulv(throughput, h.emission))
		radiance = radiance.Add(mulv(throughput, mulv(h.albedo, ft.direct(h))))

		var dir mgl32.Vec3
		switch {
		case h.transmit:
			dir = r.dir
			h.point = h.point.Sub(h.normal.Mul(2 * epsilon))
		case rng.Float32() < h.reflect:
			dir = reflect(r.dir, h.normal).Add(cosineSample(h.normal, rng).Mul(h.rough)).Normalize()
		default:
			dir = cosineSample(h.normal, rng)
		}
		throughput = mulv(throughput, h.albedo)
		if maxComponent(throughput) < ft.renderer.minContribution {
			break
		}
		r = ray{origin: h.point.Add(h.normal.Mul(epsilon)), dir: dir}
		tmin = epsilon
	}

	vc, va := ft.scene.composite(primary, ft.tmin(), firstT)
	radiance = vc.Add(radiance.Mul(1 - va))
	alpha = va + alpha*(1-va)
	return radiance.Vec4(alpha)
}
