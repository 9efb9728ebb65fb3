package voxeltree

// edges lists the twelve edges of a unit cube as pairs of corner indices
// (corner bit layout matches octant: bit0=x, bit1=y, bit2=z).
var edges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7}, // along x
	{0, 2}, {1, 3}, {4, 6}, {5, 7}, // along y
	{0, 4}, {1, 5}, {2, 6}, {3, 7}, // along z
}

func corner(min, max Point3, idx int) Point3 {
	p := min
	if idx&1 != 0 {
		p.X = max.X
	}
	if idx&2 != 0 {
		p.Y = max.Y
	}
	if idx&4 != 0 {
		p.Z = max.Z
	}
	return p
}

// ExtractSurface samples brush density on the twelve edges of bounds' cube
// and builds the vertex as the weighted centroid of the zero-crossings,
// taking the normal from the brush evaluated at that vertex and the
// corner-inside flag from the min corner's sign alone (corner index 0 is
// always worldExtent's min, by construction of corner()). Mirrors §4.c's
// surface-voxel extraction procedure. If no edge crosses zero the cell is
// uniformly inside or outside and ExtractSurface returns nil; callers
// collapse such cells to a plain Volume leaf per §4.c.
func ExtractSurface(bounds Bounds, brush Brush) *SurfaceVoxel {
	min, max := worldExtent(bounds)

	corners := [8]Point3{}
	density := [8]float64{}
	for i := 0; i < 8; i++ {
		corners[i] = corner(min, max, i)
		density[i] = brush.Density(corners[i])
	}

	var sum Point3
	count := 0
	for _, e := range edges {
		a, b := e[0], e[1]
		da, db := density[a], density[b]
		if (da >= 0) == (db >= 0) {
			continue // no zero crossing on this edge
		}
		t := da / (da - db)
		crossing := Point3{
			X: corners[a].X + (corners[b].X-corners[a].X)*t,
			Y: corners[a].Y + (corners[b].Y-corners[a].Y)*t,
			Z: corners[a].Z + (corners[b].Z-corners[a].Z)*t,
		}
		sum.X += crossing.X
		sum.Y += crossing.Y
		sum.Z += crossing.Z
		count++
	}

	if count == 0 {
		return nil
	}

	vertex := Point3{X: sum.X / float64(count), Y: sum.Y / float64(count), Z: sum.Z / float64(count)}
	normal := brush.Normal(vertex)
	return &SurfaceVoxel{
		Vertex:              [3]float64{vertex.X, vertex.Y, vertex.Z},
		Normal:              [3]float64{normal.X, normal.Y, normal.Z},
		CornerInsideSurface: density[0] >= 0,
	}
}
