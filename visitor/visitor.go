// Package visitor generates and persists the per-installation visitor id.
package visitor

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// Template is the layout of a visitor id. Position 12 is a fixed version marker.
const Template = "xxxxxxxxxxxx4xxxyxxxxxxxxxxxxxxx"

// Length of every generated id.
const Length = len(Template)

const hexDigits = "0123456789abcdef"

// Generator produces visitor ids from a millisecond clock and a [0,1) random stream.
type Generator struct {
	Now  func() time.Time
	Rand func() float64
}

var defaultGenerator = Generator{Now: time.Now, Rand: rand.Float64}

// Generate returns a new visitor id using the wall clock and math/rand.
func Generate() string {
	return defaultGenerator.Generate()
}

// Generate fills the template: '4' is copied, every 'x' becomes a nibble of
// (seed + rand*16) mod 16, every 'y' becomes (r&0x3)|0x8. The seed starts at
// the current Unix millisecond and loses one hex digit per position.
func (g Generator) Generate() string {
	now, rnd := g.Now, g.Rand
	if now == nil {
		now = time.Now
	}
	if rnd == nil {
		rnd = rand.Float64
	}

	d := now().UnixMilli()
	var sb strings.Builder
	sb.Grow(Length)

	for i := 0; i < len(Template); i++ {
		c := Template[i]
		if c != 'x' && c != 'y' {
			sb.WriteByte(c)
			continue
		}
		r := int(math.Mod(float64(d)+rnd()*16, 16))
		d /= 16
		if c == 'y' {
			r = (r & 0x3) | 0x8
		}
		sb.WriteByte(hexDigits[r&0xf])
	}
	return sb.String()
}

// Valid reports whether id has the visitor id shape: 32 lowercase hex digits
// with '4' at position 12 and one of 8, 9, a, b at position 16.
func Valid(id string) bool {
	if len(id) != Length {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !strings.ContainsRune(hexDigits, rune(id[i])) {
			return false
		}
	}
	return id[12] == '4' && strings.ContainsRune("89ab", rune(id[16]))
}
