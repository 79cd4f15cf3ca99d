package feature

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rushteam/neuralcalc/core"
)

func padded(head ...float32) []float32 {
	vec := make([]float32, VectorWidth)
	copy(vec, head)
	for i := len(head); i < VectorWidth; i++ {
		vec[i] = PadValue
	}
	return vec
}

func TestTokenizer_Tokenize(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []float32
	}{
		{name: "addition", expr: "1 + 2", want: padded(1, 1, 2)},
		{name: "subtraction", expr: "5 - 3", want: padded(5, 0, 3)},
		{name: "single number", expr: "42", want: padded(42)},
		{name: "mixed chain", expr: "1 + 2 - 3", want: padded(1, 1, 2, 0, 3)},
		{name: "decimals and signs", expr: "-1.5 + +2.25", want: padded(-1.5, 1, 2.25)},
		{name: "exponent", expr: "1e3 - 2E-1", want: padded(1000, 0, 0.2)},
		{
			name: "fifteen tokens no padding",
			expr: "1 + 2 + 3 + 4 + 5 + 6 + 7 + 8",
			want: []float32{1, 1, 2, 1, 3, 1, 4, 1, 5, 1, 6, 1, 7, 1, 8},
		},
	}

	tok := NewTokenizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tok.Tokenize(tt.expr)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tt.expr, err)
			}
			if len(got) != VectorWidth {
				t.Fatalf("期望长度 %d，实际 %d", VectorWidth, len(got))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Tokenize(%q)[%d] = %v, want %v", tt.expr, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTokenizer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		check   func(error) bool
		contain string
	}{
		{name: "unknown operator", expr: "1 * 2", check: core.IsUnknownOperator, contain: "*"},
		{name: "two numbers", expr: "1 2", check: core.IsUnknownOperator, contain: "2"},
		{name: "double space", expr: "1  + 2", check: core.IsUnknownOperator},
		{name: "bad number", expr: "bad * 3", check: core.IsParseError, contain: "bad"},
		{name: "empty expression", expr: "", check: core.IsParseError},
		{name: "trailing operator", expr: "1 +", check: core.IsMalformedExpression},
		{name: "operator first", expr: "+ 1", check: core.IsParseError},
		{name: "hex float", expr: "0x1p3 + 1", check: core.IsParseError, contain: "0x1p3"},
		{name: "hex float with fraction", expr: "1 - 0x1.8p1", check: core.IsParseError, contain: "0x1.8p1"},
		{name: "signed hex float", expr: "-0X1P3 + 1", check: core.IsParseError},
		{
			name:  "sixteen tokens",
			expr:  "1 + 2 + 3 + 4 + 5 + 6 + 7 + 8 +",
			check: core.IsTooManyTokens,
		},
		{
			name:  "seventeen tokens",
			expr:  "1 + 2 + 3 + 4 + 5 + 6 + 7 + 8 + 9",
			check: core.IsTooManyTokens,
		},
	}

	tok := NewTokenizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tok.Tokenize(tt.expr)
			if err == nil {
				t.Fatalf("Tokenize(%q) = %v, want error", tt.expr, got)
			}
			if !tt.check(err) {
				t.Errorf("Tokenize(%q) error = %v, wrong kind", tt.expr, err)
			}
			if !core.IsTokenizerError(err) {
				t.Errorf("期望 tokenizer 模块错误，实际 %v", err)
			}
			if tt.contain != "" && !strings.Contains(err.Error(), tt.contain) {
				t.Errorf("error %q should name token %q", err.Error(), tt.contain)
			}
		})
	}
}

func TestTokenizer_OutOfRangeSaturates(t *testing.T) {
	got, err := NewTokenizer().Tokenize("1e40 - 1e-50")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsInf(float64(got[0]), 1) {
		t.Errorf("got[0] = %v, want +Inf", got[0])
	}
	if got[2] != 0 {
		t.Errorf("got[2] = %v, want 0", got[2])
	}
}

// inf/nan 与数字间下划线属于合法写法，不应随十六进制一起被拒绝
func TestTokenizer_SpecialDecimalForms(t *testing.T) {
	tok := NewTokenizer()
	tests := []struct {
		expr  string
		check func(float32) bool
	}{
		{expr: "1_0 + 1", check: func(v float32) bool { return v == 10 }},
		{expr: "inf + 1", check: func(v float32) bool { return math.IsInf(float64(v), 1) }},
		{expr: "-Infinity - 1", check: func(v float32) bool { return math.IsInf(float64(v), -1) }},
		{expr: "nan - 1", check: func(v float32) bool { return math.IsNaN(float64(v)) }},
		{expr: "0.5 + 1", check: func(v float32) bool { return v == 0.5 }},
	}
	for _, tt := range tests {
		got, err := tok.Tokenize(tt.expr)
		if err != nil {
			t.Errorf("Tokenize(%q) error: %v", tt.expr, err)
			continue
		}
		if !tt.check(got[0]) {
			t.Errorf("Tokenize(%q)[0] = %v", tt.expr, got[0])
		}
	}
}

func TestTokenizer_Deterministic(t *testing.T) {
	tok := NewTokenizer()
	a, err := tok.Tokenize("3.5 - 1 + 7")
	if err != nil {
		t.Fatal(err)
	}
	b, err := tok.Tokenize("3.5 - 1 + 7")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("position %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestTokenizer_TokenizeBatch(t *testing.T) {
	tok := NewTokenizer()

	rows, err := tok.TokenizeBatch([]string{"1 + 2", "5 - 3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("期望 2 行，实际 %d 行", len(rows))
	}
	for i, row := range rows {
		if len(row) != VectorWidth {
			t.Errorf("row %d has %d columns", i, len(row))
		}
	}

	_, err = tok.TokenizeBatch([]string{"1 + 2", "1 * 2"})
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected *BatchError, got %v", err)
	}
	if batchErr.Index != 1 {
		t.Errorf("Index = %d, want 1", batchErr.Index)
	}
	if !core.IsUnknownOperator(err) {
		t.Errorf("wrapped error should stay inspectable, got %v", err)
	}
}
