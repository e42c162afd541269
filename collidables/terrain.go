package collidables

import (
	"fmt"
	"image"
	_ "image/png"
	"os"

	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Terrain is a height field. Sample (col, row) sits at local (col, height, row) and the
// affine transform places, scales and orients the grid. Each cell holds two triangles
// whose counterclockwise faces point up in local space.
type Terrain struct {
	id         uuid.UUID
	instanceID uint64

	heights      []float32
	width, depth int
	minH, maxH   float32
	transform    geom.AffineTransform
	box          geom.AABB

	Sides             geom.TriangleSidedness
	ImproveBoundaries bool
}

// NewTerrain builds a terrain from width*depth heights stored row by row.
func NewTerrain(heights []float32, width, depth int, transform geom.AffineTransform) (*Terrain, error) {
	if width < 2 || depth < 2 {
		return nil, fmt.Errorf("%w: terrain needs at least 2x2 samples, got %dx%d", ErrInvalidMesh, width, depth)
	}
	if len(heights) != width*depth {
		return nil, fmt.Errorf("%w: %d heights for a %dx%d terrain", ErrInvalidMesh, len(heights), width, depth)
	}
	t := &Terrain{
		id:                uuid.New(),
		instanceID:        nextInstanceID(),
		heights:           heights,
		width:             width,
		depth:             depth,
		minH:              math32.Inf(1),
		maxH:              math32.Inf(-1),
		Sides:             geom.Counterclockwise,
		ImproveBoundaries: true,
	}
	for _, h := range heights {
		if math32.IsNaN(h) || math32.IsInf(h, 0) {
			return nil, fmt.Errorf("%w: non finite terrain height", ErrInvalidMesh)
		}
		t.minH = min(t.minH, h)
		t.maxH = max(t.maxH, h)
	}
	t.SetTransform(transform)
	return t, nil
}

// LoadHeightmap decodes a PNG, BMP or TIFF image from disk.
func LoadHeightmap(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode heightmap %s: %w", path, err)
	}
	return img, nil
}

// TerrainFromImage samples image luminance into heights in [0, 1]. Columns follow the
// image X axis and rows the image Y axis.
func TerrainFromImage(img image.Image, transform geom.AffineTransform) (*Terrain, error) {
	b := img.Bounds()
	w, d := b.Dx(), b.Dy()
	heights := make([]float32, 0, w*d)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			lum := (299*r + 587*g + 114*bl) / 1000
			heights = append(heights, float32(lum)/0xffff)
		}
	}
	return NewTerrain(heights, w, d, transform)
}

func (t *Terrain) collidable() {}

func (t *Terrain) Kind() Kind                     { return KindTerrain }
func (t *Terrain) ID() uuid.UUID                  { return t.id }
func (t *Terrain) InstanceID() uint64             { return t.instanceID }
func (t *Terrain) IsStatic() bool                 { return true }
func (t *Terrain) BoundingBox() geom.AABB         { return t.box }
func (t *Terrain) ImprovedBoundaryHandling() bool { return t.ImproveBoundaries }

func (t *Terrain) Size() (width, depth int) { return t.width, t.depth }

func (t *Terrain) Height(col, row int) float32 { return t.heights[row*t.width+col] }

func (t *Terrain) Transform() geom.AffineTransform { return t.transform }

func (t *Terrain) SetTransform(tr geom.AffineTransform) {
	t.transform = tr
	t.UpdateBoundingBox()
}

func (t *Terrain) UpdateBoundingBox() {
	t.box = t.localBounds().Transform(t.transform.Matrix)
}

func (t *Terrain) Sidedness() geom.TriangleSidedness {
	return windingSides(t.Sides, t.transform.Matrix.Det() < 0)
}

func (t *Terrain) localBounds() geom.AABB {
	return geom.AABB{
		Min: mgl32.Vec3{0, t.minH, 0},
		Max: mgl32.Vec3{float32(t.width - 1), t.maxH, float32(t.depth - 1)},
	}
}

func (t *Terrain) localVertex(i int) mgl32.Vec3 {
	return mgl32.Vec3{float32(i % t.width), t.heights[i], float32(i / t.width)}
}

func (t *Terrain) triangleIndices(i int) TriangleIndices {
	cell := i / 2
	row, col := cell/(t.width-1), cell%(t.width-1)
	v00 := row*t.width + col
	v10 := v00 + 1
	v01 := v00 + t.width
	if i%2 == 0 {
		return TriangleIndices{A: v00, B: v01, C: v10}
	}
	return TriangleIndices{A: v10, B: v01, C: v01 + 1}
}

func (t *Terrain) Triangle(i int) (TriangleIndices, mgl32.Vec3, mgl32.Vec3, mgl32.Vec3) {
	ti := t.triangleIndices(i)
	return ti,
		t.transform.TransformPoint(t.localVertex(ti.A)),
		t.transform.TransformPoint(t.localVertex(ti.B)),
		t.transform.TransformPoint(t.localVertex(ti.C))
}

// FindOverlappingTriangles looks the box up in the cell grid instead of a tree.
func (t *Terrain) FindOverlappingTriangles(box geom.AABB, out []int) []int {
	lb := box.Transform(t.transform.Inverse())
	if !lb.Intersects(t.localBounds()) {
		return out
	}
	c0 := max(0, int(math32.Floor(lb.Min[0])))
	c1 := min(t.width-2, int(math32.Floor(lb.Max[0])))
	r0 := max(0, int(math32.Floor(lb.Min[2])))
	r1 := min(t.depth-2, int(math32.Floor(lb.Max[2])))
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			cell := row*(t.width-1) + col
			for k := 0; k < 2; k++ {
				ti := t.triangleIndices(cell*2 + k)
				ha, hb, hc := t.heights[ti.A], t.heights[ti.B], t.heights[ti.C]
				if max(ha, hb, hc) < lb.Min[1] || min(ha, hb, hc) > lb.Max[1] {
					continue
				}
				out = append(out, cell*2+k)
			}
		}
	}
	return out
}

// RayCast walks the cells under the ray in order and stops at the first cell with a hit.
func (t *Terrain) RayCast(r geom.Ray, maxLength float32) (geom.RayHit, bool) {
	origin := t.transform.InverseTransformPoint(r.Origin)
	dir := t.transform.InverseTransformPoint(r.Origin.Add(r.Direction)).Sub(origin)
	local := geom.Ray{Origin: origin, Direction: dir}
	enter, ok := t.localBounds().RayIntersect(local, maxLength)
	if !ok {
		return geom.RayHit{}, false
	}
	p := local.At(enter)
	col := clampInt(int(math32.Floor(p[0])), 0, t.width-2)
	row := clampInt(int(math32.Floor(p[2])), 0, t.depth-2)

	stepCol, tMaxCol, tDeltaCol := ddaAxis(origin[0], dir[0], col)
	stepRow, tMaxRow, tDeltaRow := ddaAxis(origin[2], dir[2], row)

	sides := t.Sidedness()
	for i := 0; i < t.width+t.depth; i++ {
		var best geom.RayHit
		found := false
		cell := row*(t.width-1) + col
		for k := 0; k < 2; k++ {
			_, a, b, c := t.Triangle(cell*2 + k)
			tri := geom.Triangle{A: a, B: b, C: c, Sidedness: sides}
			if hit, ok := tri.RayCast(r, maxLength); ok && (!found || hit.T < best.T) {
				best, found = hit, true
			}
		}
		if found {
			return best, true
		}
		var next float32
		if tMaxCol < tMaxRow {
			col += stepCol
			next = tMaxCol
			tMaxCol += tDeltaCol
		} else {
			row += stepRow
			next = tMaxRow
			tMaxRow += tDeltaRow
		}
		if col < 0 || col > t.width-2 || row < 0 || row > t.depth-2 || next > maxLength {
			break
		}
	}
	return geom.RayHit{}, false
}

// ddaAxis returns the step direction, the ray parameter of the first cell boundary and
// the parameter spacing between boundaries along one grid axis.
func ddaAxis(o, d float32, cell int) (int, float32, float32) {
	switch {
	case d > 0:
		return 1, (float32(cell+1) - o) / d, 1 / d
	case d < 0:
		return -1, (float32(cell) - o) / d, -1 / d
	}
	return 0, math32.Inf(1), math32.Inf(1)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
