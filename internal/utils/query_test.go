package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(0, 1, 100) != 1 || Clamp(500, 1, 100) != 100 || Clamp(20, 1, 100) != 20 {
		t.Fatalf("clamp out of bounds")
	}
}

func TestParseOptionalFloat(t *testing.T) {
	v, err := ParseOptionalFloat("  ")
	if v != nil || err != nil {
		t.Fatalf("blank: %v %v", v, err)
	}
	v, err = ParseOptionalFloat(" 18.5204 ")
	if err != nil || v == nil || *v != 18.5204 {
		t.Fatalf("number: %v %v", v, err)
	}
	if _, err = ParseOptionalFloat("north"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		size  int
		want  int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{5, 0, 0},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.size); got != tc.want {
			t.Fatalf("TotalPages(%d,%d)=%d want %d", tc.total, tc.size, got, tc.want)
		}
	}
}
