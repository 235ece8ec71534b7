// Package track detects fingertip-shaped curvature peaks in the
// foreground mask and maintains per-finger identity across frames.
package track

import (
	"image"

	"gocv.io/x/gocv"
)

// Contour and tracking settings.
const (
	// minContourArea filters specks that cannot be a hand.
	minContourArea = 500
	// nonmaxProximity is the squared distance binding consecutive hull
	// points into one candidate cluster.
	nonmaxProximity = 500
	// maxTrackingRange is the per-frame movement allowance; candidates
	// further than this squared root never match a tracked finger.
	maxTrackingRange = 75
	// maxTrackingLife is how many absent frames a tracked finger survives.
	maxTrackingLife = 10
	// focusResetTime is the number of detections before a focused
	// tracking region falls back to the full frame.
	focusResetTime = 10
	// comOffset is the contour index offset on either side of the tip
	// whose points average into the center of mass.
	comOffset = 15
)

// Fingertip is a tracked finger candidate in view coordinates.
type Fingertip struct {
	// Point is the fingertip position.
	Point image.Point
	// CenterOfMass is the mean of two contour points at fixed offsets
	// from the tip, approximating the finger direction.
	CenterOfMass image.Point
	// Age counts the frames in which this finger has been detected; it
	// starts at 1 and carries over frames the finger briefly went missing.
	Age int
	// ID is unique for the lifetime of the tracker and never reused.
	ID uint64
}

type memoryEntry struct {
	finger Fingertip
	life   int
}

type candidate struct {
	tip image.Point
	com image.Point
}

// Tracker finds fingertips in foreground masks and tracks them frame to
// frame. It is not safe for concurrent use; the consumer thread owns it.
type Tracker struct {
	viewSize   image.Point
	region     image.Rectangle
	resetTimer int
	memory     []memoryEntry
	nextID     uint64
}

// NewTracker creates a Tracker operating on masks of the given size.
func NewTracker(viewSize image.Point) *Tracker {
	return &Tracker{
		viewSize: viewSize,
		region:   image.Rect(0, 0, viewSize.X, viewSize.Y),
		nextID:   1,
	}
}

// Focus narrows the tracking region to a square of the given size
// centered on point, clamped to the view. The region falls back to the
// full frame after focusResetTime detections.
func (t *Tracker) Focus(point image.Point, size image.Point) {
	half := image.Pt(size.X/2, size.Y/2)

	topLeft := image.Pt(max(point.X-half.X, 0), max(point.Y-half.Y, 0))
	botRight := image.Pt(
		min(point.X+half.X, t.viewSize.X-1),
		min(point.Y+half.Y, t.viewSize.Y-1),
	)

	t.region = image.Rectangle{Min: topLeft, Max: botRight}
	t.resetTimer = focusResetTime
}

// Region exposes the active tracking region.
func (t *Tracker) Region() image.Rectangle {
	return t.region
}

// edgeTest reports whether a region-local contour point lies on the
// tracking region edge.
func (t *Tracker) edgeTest(pt image.Point) bool {
	return pt.X == 0 || pt.Y == 0 || pt.X == t.region.Dx()-1 || pt.Y == t.region.Dy()-1
}

// Detect finds fingertip candidates in the foreground mask and matches
// them against tracking memory, assigning stable IDs.
func (t *Tracker) Detect(foregroundMask gocv.Mat) []Fingertip {
	if t.resetTimer > 0 {
		if t.resetTimer--; t.resetTimer <= 0 {
			t.region = image.Rect(0, 0, t.viewSize.X, t.viewSize.Y)
		}
	}

	candidates := t.findCandidates(foregroundMask)
	fingertips := t.matchCandidates(candidates)

	t.updateMemory(fingertips)
	return fingertips
}

// findCandidates extracts one fingertip candidate per curvature cluster
// on each sufficiently large contour inside the tracking region.
func (t *Tracker) findCandidates(mask gocv.Mat) []candidate {
	cropped := mask.Region(t.region)
	work := cropped.Clone()
	cropped.Close()
	defer work.Close()

	contours := gocv.FindContours(work, gocv.RetrievalExternal, gocv.ChainApproxNone)
	defer contours.Close()

	var candidates []candidate
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		if gocv.ContourArea(pv) < minContourArea {
			continue
		}
		contour := pv.ToPoints()

		// Hull points are mask extremities; an outstretched finger is
		// always one of them.
		hullMat := gocv.NewMat()
		gocv.ConvexHull(pv, &hullMat, false, false)
		hull := make([]int, hullMat.Rows())
		for h := range hull {
			hull[h] = int(hullMat.GetIntAt(h, 0))
		}
		hullMat.Close()

		if len(hull) == 0 {
			continue
		}

		candidates = append(candidates, t.clusterHull(contour, hull)...)
	}

	// Candidates carry view coordinates; contours were region-local.
	for i := range candidates {
		candidates[i].tip = candidates[i].tip.Add(t.region.Min)
		candidates[i].com = candidates[i].com.Add(t.region.Min)
	}
	return candidates
}

// clusterHull walks the hull, grouping nearby points into clusters and
// emitting the best-scoring point of each cluster as a candidate.
func (t *Tracker) clusterHull(contour []image.Point, hull []int) []candidate {
	n := len(contour)

	// Start at a hull point on the region edge so a cluster is never
	// split across the hull's wraparound.
	offset := 0
	for ; offset < len(hull); offset++ {
		if t.edgeTest(contour[hull[offset]]) {
			break
		}
	}

	var candidates []candidate
	emit := func(best int) {
		com := contour[(best+comOffset)%n].Add(contour[((best-comOffset)%n+n)%n])
		candidates = append(candidates, candidate{
			tip: contour[best],
			com: image.Pt(com.X/2, com.Y/2),
		})
	}

	last := contour[hull[offset%len(hull)]]
	best, bestScore := -1, arcMinScore
	for i := 0; i < len(hull); i++ {
		index := hull[(offset+i)%len(hull)]
		score := t.arcScore(contour, index)

		// A large jump from the previous member starts a new cluster.
		v := contour[index].Sub(last)
		if v.X*v.X+v.Y*v.Y > nonmaxProximity {
			if best != -1 {
				emit(best)
			}
			best, bestScore = -1, arcMinScore
		}
		last = contour[index]

		if score > bestScore {
			best, bestScore = index, score
		}
	}
	if best != -1 {
		emit(best)
	}
	return candidates
}

// matchCandidates pairs candidates with tracking memory by proximity.
// Matched fingers keep their ID and gain age; leftovers become new
// fingers with a fresh ID.
func (t *Tracker) matchCandidates(candidates []candidate) []Fingertip {
	var fingertips []Fingertip

	for m := 0; m < len(t.memory); m++ {
		entry := t.memory[m]

		matchIndex := -1
		closest := maxTrackingRange * maxTrackingRange
		for c := range candidates {
			offset := entry.finger.Point.Sub(candidates[c].tip)
			if d := offset.X*offset.X + offset.Y*offset.Y; d < closest {
				closest = d
				matchIndex = c
			}
		}

		if matchIndex < 0 {
			continue
		}

		fingertips = append(fingertips, Fingertip{
			Point:        candidates[matchIndex].tip,
			CenterOfMass: candidates[matchIndex].com,
			Age:          entry.finger.Age + 1,
			ID:           entry.finger.ID,
		})

		// Neither the memory entry nor the candidate may match twice.
		t.memory[m] = t.memory[len(t.memory)-1]
		t.memory = t.memory[:len(t.memory)-1]
		m--

		candidates[matchIndex] = candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]
	}

	for _, c := range candidates {
		fingertips = append(fingertips, Fingertip{
			Point:        c.tip,
			CenterOfMass: c.com,
			Age:          1,
			ID:           t.nextID,
		})
		t.nextID++
	}
	return fingertips
}

// updateMemory ages out unmatched entries and remembers this frame's
// fingertips.
func (t *Tracker) updateMemory(fingertips []Fingertip) {
	kept := t.memory[:0]
	for _, entry := range t.memory {
		if entry.life--; entry.life > 0 {
			kept = append(kept, entry)
		}
	}
	t.memory = kept

	for _, finger := range fingertips {
		t.memory = append(t.memory, memoryEntry{finger: finger, life: maxTrackingLife})
	}
}
