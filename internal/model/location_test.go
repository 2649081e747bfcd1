package model

import "testing"

func TestLocationStringParseRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		loc  Location
		want string
	}{
		{"player", Location{Server: "hub", World: "world", X: 10, Y: 64, Z: -3}, "hub world 10 64 -3"},
		{"console with server", Location{Server: "hub"}, "hub"},
		{"console without server", Location{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.loc.String(); got != tc.want {
				t.Fatalf("String() = %q, want %q", got, tc.want)
			}
			parsed, err := ParseLocation(tc.want)
			if err != nil {
				t.Fatal(err)
			}
			if parsed != tc.loc {
				t.Fatalf("ParseLocation(%q) = %+v, want %+v", tc.want, parsed, tc.loc)
			}
		})
	}
}

func TestParseLocationWithoutServer(t *testing.T) {
	loc, err := ParseLocation("world 1 2 3")
	if err != nil {
		t.Fatal(err)
	}
	want := Location{World: "world", X: 1, Y: 2, Z: 3}
	if loc != want {
		t.Fatalf("got %+v, want %+v", loc, want)
	}
	if loc.FromConsole() {
		t.Error("a location with a world is not a console location")
	}
}

func TestParseLocationRejectsGarbage(t *testing.T) {
	for _, s := range []string{"hub world 1 2", "hub world x y z", "a b c d e f"} {
		if _, err := ParseLocation(s); err == nil {
			t.Errorf("ParseLocation(%q) should fail", s)
		}
	}
}
