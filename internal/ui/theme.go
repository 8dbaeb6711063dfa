package ui

import "github.com/gdamore/tcell/v2"

var (
	ColorBg        = tcell.NewRGBColor(0, 0, 128)
	ColorFg        = tcell.NewRGBColor(192, 192, 192)
	ColorBorder    = tcell.NewRGBColor(0, 255, 255)
	ColorTitle     = tcell.NewRGBColor(255, 255, 255)
	ColorHighlight = tcell.NewRGBColor(0, 255, 255)
	ColorInputBg   = tcell.NewRGBColor(0, 0, 64)
	ColorStatusBg  = tcell.NewRGBColor(0, 128, 128)
	ColorMuted     = tcell.NewRGBColor(128, 128, 128)
)

// color tags used inside TextView content
const (
	tagSent     = "[yellow]"
	tagReceived = "[aqua]"
	tagSeen     = "[green]"
	tagOnline   = "[green]"
	tagOffline  = "[gray]"
	tagReset    = "[-]"
)
