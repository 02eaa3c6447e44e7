package sweep

import "testing"

func TestRegisterSegmenter_RoundTrip(t *testing.T) {
	id := "registry-" + t.Name()
	s := makeTestSegmenter(t, SegmenterParams{})

	RegisterSegmenter(id, s)
	if got := GetSegmenter(id); got != s {
		t.Errorf("Expected registered segmenter back, got %v", got)
	}
}

func TestRegisterSegmenter_IgnoresEmptyIDAndNil(t *testing.T) {
	id := "registry-" + t.Name()
	s := makeTestSegmenter(t, SegmenterParams{})

	RegisterSegmenter("", s)
	RegisterSegmenter(id, nil)
	if got := GetSegmenter(id); got != nil {
		t.Errorf("Expected nil for sensor with no registration, got %v", got)
	}
}

func TestGetSegmenter_UnknownSensor(t *testing.T) {
	if got := GetSegmenter("registry-never-registered"); got != nil {
		t.Errorf("Expected nil for unknown sensor, got %v", got)
	}
}

func TestRegisterSegmenter_Replaces(t *testing.T) {
	id := "registry-" + t.Name()
	first := makeTestSegmenter(t, SegmenterParams{})
	second := makeTestSegmenter(t, SegmenterParams{})

	RegisterSegmenter(id, first)
	RegisterSegmenter(id, second)
	if got := GetSegmenter(id); got != second {
		t.Errorf("Expected replacement segmenter, got %v", got)
	}
}
