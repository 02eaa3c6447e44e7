package sweep

import "math"

// labelDirs is the 4-connected neighborhood: up, right, left, down in
// (ring, column) deltas.
var labelDirs = [4][2]int{{-1, 0}, {0, 1}, {0, -1}, {1, 0}}

// minFullSegmentSize is the cell count at which a segment is accepted
// outright, with no row-span requirement.
const minFullSegmentSize = 30

// componentLabeler grows one segment at a time by breadth-first search over
// the 4-connected neighborhood, with circular column wrap. The bookkeeping
// arrays are sized to the full grid once so repeated sweeps do not allocate.
type componentLabeler struct {
	rings int
	bins  int

	horizontalAlpha float64
	verticalAlpha   float64
	theta           float64
	minPoints       int
	minLines        int

	queueRow  []int
	queueCol  []int
	pushedRow []int
	pushedCol []int
	lineFlag  []bool

	nextLabel int32
}

func newComponentLabeler(p SegmenterParams) *componentLabeler {
	cells := p.Rings * p.AzimuthBins
	return &componentLabeler{
		rings:           p.Rings,
		bins:            p.AzimuthBins,
		horizontalAlpha: p.HorizontalAlpha,
		verticalAlpha:   p.VerticalAlpha,
		theta:           p.SegmentTheta,
		minPoints:       p.MinValidPoints,
		minLines:        p.MinValidLines,

		queueRow:  make([]int, cells),
		queueCol:  make([]int, cells),
		pushedRow: make([]int, cells),
		pushedCol: make([]int, cells),
		lineFlag:  make([]bool, p.Rings),

		nextLabel: 1,
	}
}

func (l *componentLabeler) reset() { l.nextLabel = 1 }

// segment labels the connected component of every unassigned cell, seeding in
// row-major order. Seed order fixes tie-breaking where segments touch, so it
// must stay deterministic.
func (s *Segmenter) segment(counts *SweepCounts) {
	bins := s.params.AzimuthBins
	for row := 0; row < s.params.Rings; row++ {
		for col := 0; col < bins; col++ {
			if s.labelGrid[row*bins+col] == 0 {
				s.labeler.labelComponent(s.rangeGrid, s.labelGrid, row, col)
			}
		}
	}
	counts.SegmentCount = int(s.labeler.nextLabel) - 1
}

// labelComponent floods the segment containing the seed cell and either
// commits a fresh label or relabels the whole segment invalid. A neighbor is
// admitted when the surface angle between the two returns exceeds theta,
// using the horizontal alpha for column steps and the vertical alpha for ring
// steps. Admitted cells are labeled immediately and flag their ring as
// touched; the seed's ring only counts if the flood re-enters it.
func (l *componentLabeler) labelComponent(rangeGrid []float32, labelGrid []int32, row, col int) {
	l.queueRow[0] = row
	l.queueCol[0] = col
	l.pushedRow[0] = row
	l.pushedCol[0] = col
	pushed := 1

	for i := range l.lineFlag {
		l.lineFlag[i] = false
	}

	head, tail := 0, 1
	for head < tail {
		fromRow := l.queueRow[head]
		fromCol := l.queueCol[head]
		head++

		labelGrid[fromRow*l.bins+fromCol] = l.nextLabel

		for _, d := range labelDirs {
			toRow := fromRow + d[0]
			toCol := fromCol + d[1]

			// Rings clip at the edges; columns wrap the full rotation.
			if toRow < 0 || toRow >= l.rings {
				continue
			}
			if toCol < 0 {
				toCol = l.bins - 1
			}
			if toCol >= l.bins {
				toCol = 0
			}

			if labelGrid[toRow*l.bins+toCol] != 0 {
				continue
			}

			r1 := float64(rangeGrid[fromRow*l.bins+fromCol])
			r2 := float64(rangeGrid[toRow*l.bins+toCol])
			d1 := math.Max(r1, r2)
			d2 := math.Min(r1, r2)

			alpha := l.verticalAlpha
			if d[0] == 0 {
				alpha = l.horizontalAlpha
			}

			angle := math.Atan2(d2*math.Sin(alpha), d1-d2*math.Cos(alpha))
			if angle <= l.theta {
				continue
			}

			labelGrid[toRow*l.bins+toCol] = l.nextLabel
			l.lineFlag[toRow] = true

			l.queueRow[tail] = toRow
			l.queueCol[tail] = toCol
			tail++

			l.pushedRow[pushed] = toRow
			l.pushedCol[pushed] = toCol
			pushed++
		}
	}

	feasible := pushed >= minFullSegmentSize
	if !feasible && pushed >= l.minPoints {
		lines := 0
		for _, touched := range l.lineFlag {
			if touched {
				lines++
			}
		}
		feasible = lines >= l.minLines
	}

	if feasible {
		l.nextLabel++
		return
	}
	for i := 0; i < pushed; i++ {
		labelGrid[l.pushedRow[i]*l.bins+l.pushedCol[i]] = labelInvalid
	}
}
