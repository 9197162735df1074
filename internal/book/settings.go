package book

import "math"

// Reader setting bounds, matching the settings sliders.
const (
	MinFontSize   = 11
	MaxFontSize   = 40
	MinLineHeight = 0.8
	MaxLineHeight = 3.2
	MinMaxWidth   = 600
	MaxMaxWidth   = 1800
)

// FontFamilies lists the families offered by the settings panel.
var FontFamilies = []string{
	"MyCustomFont",
	"Noto Serif TC",
	"Calligraphy",
	"LXGW Marker Gothic",
	"Times New Roman",
	"Inter",
}

// ReaderSettings controls how chapter content is laid out.
type ReaderSettings struct {
	FontSize   float64 `json:"fontSize"`
	LineHeight float64 `json:"lineHeight"`
	FontFamily string  `json:"fontFamily"`
	MaxWidth   float64 `json:"maxWidth"`
}

// DefaultSettings returns the settings used when none are persisted.
func DefaultSettings() ReaderSettings {
	return ReaderSettings{
		FontSize:   18,
		LineHeight: 1.8,
		FontFamily: "MyCustomFont",
		MaxWidth:   800,
	}
}

// Clamp pulls numeric fields into their documented ranges. NaN falls back
// to the default for that field. An empty font family is reset; any other
// family is kept as-is.
func (s ReaderSettings) Clamp() ReaderSettings {
	d := DefaultSettings()
	s.FontSize = clampFloat(s.FontSize, MinFontSize, MaxFontSize, d.FontSize)
	s.LineHeight = clampFloat(s.LineHeight, MinLineHeight, MaxLineHeight, d.LineHeight)
	s.MaxWidth = clampFloat(s.MaxWidth, MinMaxWidth, MaxMaxWidth, d.MaxWidth)
	if IsBlank(s.FontFamily) {
		s.FontFamily = d.FontFamily
	}
	return s
}

func clampFloat(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return math.Max(lo, math.Min(hi, v))
}
