package textutil

import "testing"

func TestFold(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Ñandú", "Nandu"},
		{"Zoë", "Zoe"},
		{"Crème Brûlée", "Creme Brulee"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Fold(tc.in); got != tc.want {
			t.Errorf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSearchKey(t *testing.T) {
	if got := SearchKey("  ZOË "); got != "zoe" {
		t.Fatalf("SearchKey = %q, want %q", got, "zoe")
	}
}
