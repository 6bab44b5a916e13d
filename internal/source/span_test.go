package source

import "testing"

func TestSpanCover(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want Span
	}{
		{"disjoint", Span{1, 10, 20}, Span{1, 30, 40}, Span{1, 10, 40}},
		{"nested", Span{1, 10, 40}, Span{1, 15, 20}, Span{1, 10, 40}},
		{"other file", Span{1, 10, 20}, Span{2, 0, 5}, Span{1, 10, 20}},
		{"zero receiver", Span{1, 0, 0}, Span{1, 5, 9}, Span{1, 5, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Cover(tt.b); got != tt.want {
				t.Errorf("Cover = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpanContains(t *testing.T) {
	outer := Span{File: 0, Start: 5, End: 50}
	if !outer.Contains(Span{File: 0, Start: 5, End: 50}) {
		t.Error("span should contain itself")
	}
	if outer.Contains(Span{File: 0, Start: 4, End: 6}) {
		t.Error("span starting before outer must not be contained")
	}
}
