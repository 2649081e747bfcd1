package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Location is where an action was performed. Console actions carry only the
// server name; player actions also carry world coordinates. On a proxied
// deployment Server may name a node other than the current one.
type Location struct {
	Server string `json:"server,omitempty"`
	World  string `json:"world,omitempty"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
	Z      int    `json:"z,omitempty"`
}

func (l Location) FromConsole() bool {
	return l.World == ""
}

// String renders the column form "server world x y z"; console locations
// render as the bare server name.
func (l Location) String() string {
	if l.FromConsole() {
		return l.Server
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s %d %d %d", l.Server, l.World, l.X, l.Y, l.Z))
}

// ParseLocation is the inverse of String. An empty string is a console
// location with no server name.
func ParseLocation(s string) (Location, error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 0:
		return Location{}, nil
	case 1:
		return Location{Server: fields[0]}, nil
	case 4, 5:
		if len(fields) == 4 {
			fields = append([]string{""}, fields...)
		}
		coords := make([]int, 3)
		for i, f := range fields[2:] {
			n, err := strconv.Atoi(f)
			if err != nil {
				return Location{}, fmt.Errorf("parse location %q: %w", s, err)
			}
			coords[i] = n
		}
		return Location{Server: fields[0], World: fields[1], X: coords[0], Y: coords[1], Z: coords[2]}, nil
	default:
		return Location{}, fmt.Errorf("parse location: unsupported form %q", s)
	}
}
