package neuralcalc

import (
	"context"
	"testing"

	"github.com/rushteam/neuralcalc/core"
)

func TestTokenize(t *testing.T) {
	vec, err := Tokenize("5 - 3")
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{5, 0, 3, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	if len(vec) != len(want) {
		t.Fatalf("len = %d", len(vec))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Errorf("vec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}

	if _, err := Tokenize("1 * 2"); !core.IsUnknownOperator(err) {
		t.Errorf("err = %v, want unknown operator", err)
	}
}

func TestNew_WithoutModel(t *testing.T) {
	calc := New(nil)
	if calc.ModelLoaded() {
		t.Error("nil model reported as loaded")
	}
	if _, err := calc.Calculate(context.Background(), "1 + 2"); !core.IsUnavailable(err) {
		t.Errorf("err = %v, want unavailable", err)
	}
}
