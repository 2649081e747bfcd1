package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestCreatorStringForms(t *testing.T) {
	id := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")

	cases := []struct {
		creator Creator
		want    string
	}{
		{Console(), "CONSOLE"},
		{User(id), "USER.069a79f4-44e9-4726-a5be-fca90e38aaf5"},
		{Unresolved(), "UNRESOLVED"},
	}
	for _, tc := range cases {
		if got := tc.creator.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
		parsed, err := ParseCreator(tc.want)
		if err != nil {
			t.Fatalf("ParseCreator(%q): %v", tc.want, err)
		}
		if parsed.Kind != tc.creator.Kind || parsed.UUID != tc.creator.UUID {
			t.Errorf("ParseCreator(%q) = %+v, want %+v", tc.want, parsed, tc.creator)
		}
	}
}

func TestParseCreatorRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "console", "USER.", "USER.not-a-uuid", "PLAYER.x"} {
		if _, err := ParseCreator(s); err == nil {
			t.Errorf("ParseCreator(%q) should fail", s)
		}
	}
}

func TestCreatorEqual(t *testing.T) {
	a := User(uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5"))
	b := User(uuid.MustParse("ec561538-f3fd-461d-aff5-086b22154bce"))

	if !a.Equal(a) {
		t.Error("identical users must be equal")
	}
	if a.Equal(b) {
		t.Error("different uuids must not be equal")
	}
	if !Console().Equal(Console()) {
		t.Error("console equals console")
	}
	if Console().Equal(a) {
		t.Error("console never equals a user")
	}
	if Unresolved().Equal(Unresolved()) {
		t.Error("two unresolved sentinels must never match")
	}
	if Unresolved().Equal(a) || a.Equal(Unresolved()) {
		t.Error("unresolved never matches a real creator")
	}
}

func TestCreatorJSONIsAString(t *testing.T) {
	c := User(uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5"))
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"USER.069a79f4-44e9-4726-a5be-fca90e38aaf5"` {
		t.Fatalf("marshalled form = %s", data)
	}

	var back Creator
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(c) {
		t.Fatalf("round trip lost identity: %+v", back)
	}
}
