package cpu

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

const bvhLeafSize = 4

type bvhNode struct {
	box         aabb
	left, right int32
	start, n    int32
}

// bvh is a median split bounding volume hierarchy over primitive indices.
type bvh struct {
	nodes []bvhNode
	order []int32
}

func buildBVH(count int, bounds func(i int) aabb) *bvh {
	if count == 0 {
		return &bvh{}
	}
	boxes := make([]aabb, count)
	centers := make([]mgl32.Vec3, count)
	b := &bvh{order: make([]int32, count)}
	for i := range boxes {
		boxes[i] = bounds(i)
		centers[i] = boxes[i].center()
		b.order[i] = int32(i)
	}
	b.build(boxes, centers, 0, count)
	return b
}

func (b *bvh) build(boxes []aabb, centers []mgl32.Vec3, start, end int) int32 {
	box := emptyAABB()
	spread := emptyAABB()
	for _, p := range b.order[start:end] {
		box = box.union(boxes[p])
		spread = spread.extend(centers[p])
	}
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, bvhNode{box: box, left: -1, right: -1, start: int32(start), n: int32(end - start)})
	if end-start <= bvhLeafSize {
		return idx
	}

	axis := 0
	ext := spread.max.Sub(spread.min)
	if ext[1] > ext[axis] {
		axis = 1
	}
	if ext[2] > ext[axis] {
		axis = 2
	}
	slices.SortFunc(b.order[start:end], func(x, y int32) int {
		switch {
		case centers[x][axis] < centers[y][axis]:
			return -1
		case centers[x][axis] > centers[y][axis]:
			return 1
		}
		return 0
	})
	mid := (start + end) / 2
	left := b.build(boxes, centers, start, mid)
	right := b.build(boxes, centers, mid, end)
	b.nodes[idx].left, b.nodes[idx].right, b.nodes[idx].n = left, right, 0
	return idx
}

// closest returns the nearest primitive hit along r in (tmin, tmax) and its
// distance, or -1. hit is only called for primitives whose leaf box the ray
// enters before the current nearest hit.
func (b *bvh) closest(r ray, tmin, tmax float32, hit func(prim int32, tmax float32) (float32, bool)) (int32, float32) {
	if len(b.nodes) == 0 {
		return -1, tmax
	}
	best := int32(-1)
	stack := make([]int32, 0, 32)
	stack = append(stack, 0)
	for len(stack) > 0 {
		node := &b.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if _, _, ok := node.box.intersect(r, tmin, tmax); !ok {
			continue
		}
		if node.n > 0 {
			for _, p := range b.order[node.start : node.start+node.n] {
				if t, ok := hit(p, tmax); ok && t > tmin && t < tmax {
					best, tmax = p, t
				}
			}
			continue
		}
		stack = append(stack, node.left, node.right)
	}
	return best, tmax
}
