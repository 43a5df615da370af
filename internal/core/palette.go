package core

// Color is a CSS hex color such as "#2563EB".
type Color string

// Palette is the fixed set of chart colors. Order matters: ColorFor indexes
// into it, so reordering changes every category's color.
var Palette = [...]Color{
	"#2563EB", // blue
	"#F97316", // orange
	"#22C55E", // green
	"#EAB308", // yellow
	"#EC4899", // pink
	"#8B5CF6", // purple
	"#0EA5E9", // sky
	"#14B8A6", // teal
	"#F43F5E", // coral
	"#6366F1", // indigo
}

// ColorFor maps a category name to a palette color using the sum of its
// code points modulo the palette size. Different names may share a color.
func ColorFor(name string) Color {
	var hash int
	for _, r := range name {
		hash += int(r)
	}
	return Palette[hash%len(Palette)]
}

// Hex returns the color without the leading '#'.
func (c Color) Hex() string {
	if len(c) > 0 && c[0] == '#' {
		return string(c[1:])
	}
	return string(c)
}
