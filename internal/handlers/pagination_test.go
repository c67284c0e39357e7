package handlers

import "testing"

func TestParsePaginationParams(t *testing.T) {
	page, limit, err := parsePaginationParams("", "")
	if err != nil || page != 1 || limit != 20 {
		t.Fatalf("expected defaults 1/20, got %d/%d err=%v", page, limit, err)
	}

	page, limit, err = parsePaginationParams("3", "500")
	if err != nil || page != 3 || limit != maxPageLimit {
		t.Fatalf("expected 3/%d, got %d/%d err=%v", maxPageLimit, page, limit, err)
	}

	for _, tc := range [][2]string{{"0", ""}, {"", "-1"}, {"abc", ""}} {
		if _, _, err := parsePaginationParams(tc[0], tc[1]); err == nil {
			t.Fatalf("expected error for page=%q limit=%q", tc[0], tc[1])
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct{ total, limit, want int64 }{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
	}
	for _, tc := range cases {
		if got := totalPages(tc.total, tc.limit); got != tc.want {
			t.Fatalf("totalPages(%d, %d) = %d, want %d", tc.total, tc.limit, got, tc.want)
		}
	}
}
