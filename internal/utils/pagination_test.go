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
		{" 42 ", 7, 42},
		{"-13", 1, -13},
		{"x", 5, 5},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestPaginate(t *testing.T) {
	cases := []struct {
		name               string
		total, page, size  int
		wantPage, wantSize int
		wantStart, wantEnd int
	}{
		{"first page", 45, 1, 20, 1, 20, 0, 20},
		{"last partial page", 45, 3, 20, 3, 20, 40, 45},
		{"past the end", 45, 9, 20, 9, 20, 45, 45},
		{"size capped", 45, 1, 500, 1, 50, 0, 45},
		{"defaults", 10, 0, 0, 1, 50, 0, 10},
		{"empty", 0, 1, 20, 1, 20, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, start, end := Paginate(tc.total, tc.page, tc.size, 50)
			if p.Page != tc.wantPage || p.PageSize != tc.wantSize || p.Total != tc.total {
				t.Fatalf("page = %+v", p)
			}
			if start != tc.wantStart || end != tc.wantEnd {
				t.Fatalf("bounds = [%d,%d), want [%d,%d)", start, end, tc.wantStart, tc.wantEnd)
			}
		})
	}
}
