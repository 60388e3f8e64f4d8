package tensor

import (
	"testing"

	"github.com/x448/float16"
)

func TestFloat16_RoundTrip(t *testing.T) {
	// All values are exactly representable in half precision
	tensor, _ := FromSlice([]float32{0, 0.5, -1.25, 16, 2048}, []int{5})

	half := tensor.Float16()
	if len(half) != 5 {
		t.Fatalf("Expected 5 half values, got %d", len(half))
	}

	back, err := FromFloat16(half, []int{5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !back.Equals(tensor, 0) {
		t.Errorf("Round trip changed values: %v -> %v", tensor.Data, back.Data)
	}
}

func TestFloat16_Overflow(t *testing.T) {
	tensor, _ := FromSlice([]float32{1e6}, []int{1})
	if !tensor.Float16()[0].IsInf(1) {
		t.Errorf("Expected +Inf for a value beyond the float16 range")
	}
}

func TestFromFloat16_SizeMismatch(t *testing.T) {
	if _, err := FromFloat16([]float16.Float16{0, 0}, []int{3}); err == nil {
		t.Error("Expected error for size mismatch")
	}
}
