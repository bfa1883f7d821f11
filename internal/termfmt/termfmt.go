// Terminal styling for the run summary.  The shape (escapes wrapped around a value that
// implements fmt.Formatter) comes from https://github.com/shabbyrobe/golib/tree/master/termfmt,
// provided under an MIT license.
package termfmt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

type Escape interface {
	Wrap(out string) string
}

func With(escs ...Escape) Style           { return (Style{}).With(escs...) }
func Bold() Style                         { return (Style{}).Bold() }
func Fg(r, g, b uint8, c16 C16Name) Style { return (Style{}).Fg(r, g, b, c16) }

// Commonly used in summaries.
var (
	OK   = Fg(0x2e, 0xa0, 0x43, Green)
	Warn = Fg(0xd2, 0x99, 0x22, Yellow)
	Bad  = Fg(0xcf, 0x22, 0x2e, Red)
	Dim  = With(C16Color{Name: DarkGrey})
)

type Style struct {
	escapes []Escape
	v       any
}

var _ fmt.Formatter = Style{}

func (c Style) With(escs ...Escape) Style {
	// Don't share the backing array between derived styles.
	c.escapes = append(c.escapes[:len(c.escapes):len(c.escapes)], escs...)
	return c
}

func (c Style) Bold() Style { return c.With(BoldEscape{}) }

func (c Style) Fg(r, g, b uint8, c16 C16Name) Style {
	return c.With(ColorCascade{
		rgb:  RGBColor{R: r, G: g, B: b},
		c256: C256Color{C: RGBTo256(r, g, b)},
		c16:  C16Color{Name: c16},
	})
}

// V sets the value to print.
func (c Style) V(v any) Style {
	c.v = v
	return c
}

// Count is V for counters: zero gets no style at all.
func (c Style) Count(n int) Style {
	if n == 0 {
		return Style{v: n}
	}
	return c.V(n)
}

func (c Style) Format(f fmt.State, verb rune) {
	v := printable(fmt.Sprintf(buildValueFormat(f, verb), c.v))
	if mode != Plain {
		for i := len(c.escapes) - 1; i >= 0; i-- {
			v = c.escapes[i].Wrap(v)
		}
	}
	f.Write([]byte(v))
}

// Mode is the richest kind of escape the output understands.
type Mode uint8

const (
	TrueColor Mode = iota
	Color256
	Color16
	Plain
)

var mode = TrueColor

// SetMode picks the escapes to emit.  Plain emits none, e.g. when stdout isn't a terminal.
func SetMode(m Mode) { mode = m }

func RGBTo256(r, g, b uint8) uint8 {
	if r == g && g == b {
		if r < 8 {
			return 16
		}
		if r > 238 {
			return 231
		}
		return ((r - 8) / 10) + 232
	}
	r = uint8(math.Floor(float64(r) / 256.0 * 6.0))
	g = uint8(math.Floor(float64(g) / 256.0 * 6.0))
	b = uint8(math.Floor(float64(b) / 256.0 * 6.0))
	return 16 + (36 * r) + (6 * g) + b
}

func buildValueFormat(f fmt.State, verb rune) string {
	s := "%"
	for _, flag := range " +-0#" {
		if f.Flag(int(flag)) {
			s += string(flag)
		}
	}
	if width, ok := f.Width(); ok {
		s += strconv.Itoa(width)
	}
	if prec, ok := f.Precision(); ok {
		s += "." + strconv.Itoa(prec)
	}
	return s + string(verb)
}

type BoldEscape struct{}

func (b BoldEscape) Wrap(v string) string { return "\x1b[1m" + v + "\x1b[0m" }

// https://github.com/termstandard/colors
type RGBColor struct {
	R, G, B uint8
}

func (rgb RGBColor) Wrap(out string) string {
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", rgb.R, rgb.G, rgb.B, out)
}

type C256Color struct {
	C uint8
}

func (c C256Color) Wrap(out string) string {
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", c.C, out)
}

type C16Name uint8

const (
	DefaultColor C16Name = iota

	Black
	Red
	Green
	Yellow
	Blue
	Magenta
	Cyan
	LightGrey

	DarkGrey
	LightRed
	LightGreen
	LightYellow
	LightBlue
	LightMagenta
	LightCyan
	White
)

type C16Color struct {
	Name C16Name
}

func (c C16Color) Wrap(out string) string {
	cv := uint8(39)
	if c.Name != DefaultColor {
		// The lower 8 colours run from 30 to 37, the upper 8 from 90 to 97.
		cv = uint8(c.Name) - 1 + 30
		if c.Name >= DarkGrey {
			cv = uint8(c.Name-DarkGrey) + 90
		}
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", cv, out)
}

// ColorCascade uses the best of its colours that the current Mode allows.
type ColorCascade struct {
	rgb  RGBColor
	c256 C256Color
	c16  C16Color
}

func (cc ColorCascade) Wrap(out string) string {
	switch mode {
	case TrueColor:
		return cc.rgb.Wrap(out)
	case Color256:
		return cc.c256.Wrap(out)
	case Color16:
		return cc.c16.Wrap(out)
	default:
		return out
	}
}

func printable(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) || r == '\n' || r == '\t' {
			return r
		}
		return -1
	}, v)
}
