package sweep

import (
	"testing"
	"time"
)

func TestStoreLatestOutput_CopiesAndServes(t *testing.T) {
	id := "snapshot-" + t.Name()

	out := &SegmentationOutput{
		Seq:            42,
		Stamp:          time.Unix(1700000000, 0),
		Frame:          FrameID,
		SegmentedCloud: []Point{{X: 1, Y: 2, Z: 3, Intensity: 4, Ring: 5}},
	}
	StoreLatestOutput(id, out)

	// Mutating the source after Store must not bleed into the snapshot.
	out.SegmentedCloud[0].X = -99
	out.Seq = 0

	got := LatestOutput(id)
	if got == nil {
		t.Fatal("Expected stored output, got nil")
	}
	if got.Seq != 42 {
		t.Errorf("Expected seq 42, got %d", got.Seq)
	}
	if got.SegmentedCloud[0].X != 1 {
		t.Errorf("Expected deep-copied cloud, got X=%v", got.SegmentedCloud[0].X)
	}
}

func TestStoreLatestOutput_ReplacesPrevious(t *testing.T) {
	id := "snapshot-" + t.Name()

	StoreLatestOutput(id, &SegmentationOutput{Seq: 1})
	old := LatestOutput(id)
	StoreLatestOutput(id, &SegmentationOutput{Seq: 2})

	if got := LatestOutput(id); got.Seq != 2 {
		t.Errorf("Expected latest seq 2, got %d", got.Seq)
	}
	// A reader holding the earlier snapshot still sees its own copy.
	if old.Seq != 1 {
		t.Errorf("Expected retained snapshot to keep seq 1, got %d", old.Seq)
	}
}

func TestLatestOutput_UnknownSensor(t *testing.T) {
	if got := LatestOutput("snapshot-never-stored"); got != nil {
		t.Errorf("Expected nil for unknown sensor, got %v", got)
	}
}

func TestStoreLatestOutput_IgnoresEmptyIDAndNil(t *testing.T) {
	id := "snapshot-" + t.Name()
	StoreLatestOutput("", &SegmentationOutput{Seq: 9})
	StoreLatestOutput(id, nil)
	if got := LatestOutput(id); got != nil {
		t.Errorf("Expected nil after guarded stores, got %v", got)
	}
}
