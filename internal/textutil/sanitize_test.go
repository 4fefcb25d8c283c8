package textutil

import "testing"

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"The Great Gatsby", "the_great_gatsby"},
		{"  Café au Lait!  ", "cafe_au_lait"},
		{"1984", "1984"},
		{"Harry Potter & the Philosopher's Stone", "harry_potter_the_philosopher_s_stone"},
		{"三体", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeTitle(tc.in); got != tc.want {
			t.Fatalf("SanitizeTitle(%q) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestLabel(t *testing.T) {
	if got := Label("ref-image-gen"); got != "Ref Image Gen" {
		t.Fatalf("unexpected %q", got)
	}
}
