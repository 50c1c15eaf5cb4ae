package imaging

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/channel"

	apperrors "github.com/DevonsMo/IJOQ/internal/errors"
)

// Channel selects which colour component carries the junction stain.
type Channel int

const (
	Red Channel = iota
	Green
	Blue
	// White images carry the signal equally in every component; green is
	// used by convention.
	White
)

func (c Channel) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case White:
		return "white"
	default:
		return "channel(" + strconv.Itoa(int(c)) + ")"
	}
}

// Index returns the component index stored in settings files (0, 1 or 2).
func (c Channel) Index() int {
	if c == White {
		return int(Green)
	}
	return int(c)
}

// ParseChannel accepts a channel name or a component index.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red", "r", "0":
		return Red, nil
	case "green", "g", "1":
		return Green, nil
	case "blue", "b", "2":
		return Blue, nil
	case "white", "w", "3":
		return White, nil
	}
	return 0, apperrors.NewValidationError(fmt.Sprintf("unknown channel %q", s), nil)
}

// ReduceChannel projects the chosen component of img into a single-channel
// raster. Every later stage reads brightness from this raster.
func ReduceChannel(img image.Image, c Channel) *image.Gray {
	var ch channel.Channel
	switch c.Index() {
	case int(Red):
		ch = channel.Red
	case int(Blue):
		ch = channel.Blue
	default:
		ch = channel.Green
	}
	return channel.Extract(img, ch)
}
