package gpu

import "testing"

func TestPackedParamsLexicographicOrder(t *testing.T) {
	t.Parallel()
	params := map[string]float32{
		"zeta":  3,
		"alpha": 1,
		"mid":   2,
	}
	packed := packedParams(params)
	if packed[0] != 1 || packed[1] != 2 || packed[2] != 3 {
		t.Fatalf("expected lexicographic order [1,2,3,...], got %v", packed[:3])
	}
	for i := 3; i < MaxFilterParams; i++ {
		if packed[i] != 0 {
			t.Fatalf("expected zero padding at index %d, got %v", i, packed[i])
		}
	}
}

func TestPackedParamsTruncatesBeyondMax(t *testing.T) {
	t.Parallel()
	params := make(map[string]float32, MaxFilterParams+5)
	for i := 0; i < MaxFilterParams+5; i++ {
		name := string(rune('a' + i))
		params[name] = float32(i)
	}
	packed := packedParams(params)
	if len(packed) != MaxFilterParams {
		t.Fatalf("packed array must always be length %d, got %d", MaxFilterParams, len(packed))
	}
	// Names 'a'.. sort in insertion order, so the first MaxFilterParams of
	// them (values 0..MaxFilterParams-1) fill the slots and the rest drop.
	for i := 0; i < MaxFilterParams; i++ {
		if packed[i] != float32(i) {
			t.Fatalf("slot %d: got %v, want %v", i, packed[i], float32(i))
		}
	}
}

func TestPackedParamsEmpty(t *testing.T) {
	t.Parallel()
	packed := packedParams(nil)
	for i, v := range packed {
		if v != 0 {
			t.Fatalf("expected all zero for empty params, index %d = %v", i, v)
		}
	}
}
