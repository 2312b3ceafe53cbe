// Package ui builds the respawn overlay as a tree of host overlay elements.
package ui

import (
	"fmt"
	"math"
	"time"

	"github.com/udisondev/saferespawn/internal/model"
)

// Element kinds understood by the host overlay renderer.
const (
	KindPanel    = "panel"
	KindLabel    = "label"
	KindImage    = "image"
	KindRawImage = "raw_image"
	KindButton   = "button"
)

// Host layer the overlay roots attach to.
const ParentOverlay = "Overlay"

// DefaultSprite is the built-in icon used when no custom icon is available.
const DefaultSprite = "assets/icons/arrow_right.png"

// CommandSpawn is the console command bound to a clickable button.
const CommandSpawn = "saferespawn.spawn"

// Element is one overlay primitive. Anchors use the host's "x y" notation.
type Element struct {
	Name      string `json:"name"`
	Parent    string `json:"parent"`
	Kind      string `json:"kind"`
	AnchorMin string `json:"anchor_min"`
	AnchorMax string `json:"anchor_max"`
	Color     string `json:"color,omitempty"`
	Text      string `json:"text,omitempty"`
	FontSize  int    `json:"font_size,omitempty"`
	Sprite    string `json:"sprite,omitempty"`
	Image     string `json:"image,omitempty"` // icon digest for raw images
	Command   string `json:"command,omitempty"`
	Cursor    bool   `json:"cursor,omitempty"`
}

// Overlay is a complete set of elements drawn in one call.
type Overlay struct {
	Elements []Element `json:"elements"`
}

// Roots returns the names of top-level elements; destroying them removes
// the whole overlay.
func (o Overlay) Roots() []string {
	var roots []string
	for _, e := range o.Elements {
		if e.Parent == ParentOverlay {
			roots = append(roots, e.Name)
		}
	}
	return roots
}

// Theme holds colours and font settings shared by all buttons.
type Theme struct {
	TextColor     string
	CooldownColor string
	DisabledColor string
	FontSize      int
}

// Button is the view model of one location button.
type Button struct {
	Location  model.Location
	Label     string
	Color     string
	Remaining time.Duration
	// IconDigest selects a custom raw image; empty falls back to DefaultSprite.
	IconDigest string
}

// Clickable reports whether the cooldown has elapsed.
func (b Button) Clickable() bool {
	return b.Remaining <= 0
}

// Text returns "LABEL »" when clickable, "LABEL (Ns)" while counting down.
func (b Button) Text() string {
	if b.Clickable() {
		return b.Label + " »"
	}
	return fmt.Sprintf("%s (%ds)", b.Label, CountdownSeconds(b.Remaining))
}

// CountdownSeconds rounds up so an active cooldown never reads "0s".
func CountdownSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// RootName returns the root element name of a location button.
func RootName(loc model.Location) string {
	return "SafeRespawn." + string(loc)
}

// RootNames returns root names for every known location, used to clear
// any overlay regardless of what was drawn last.
func RootNames() []string {
	locs := model.Locations()
	out := make([]string, 0, len(locs))
	for _, loc := range locs {
		out = append(out, RootName(loc))
	}
	return out
}

// Button strip geometry: each button is 0.10 wide with a 0.01 gap,
// starting at x=0.45, between y=0.15 and y=0.22.
const (
	stripLeft   = 0.45
	buttonWidth = 0.10
	buttonGap   = 0.01
	stripBottom = 0.15
	stripTop    = 0.22
)

// Build renders buttons left to right into one overlay.
func Build(buttons []Button, theme Theme) Overlay {
	var o Overlay
	for i, b := range buttons {
		o.Elements = append(o.Elements, buildButton(i, b, theme)...)
	}
	return o
}

func buildButton(slot int, b Button, theme Theme) []Element {
	root := RootName(b.Location)
	panel := root + ".panel"

	left := stripLeft + float64(slot)*(buttonWidth+buttonGap)
	panelColor := b.Color
	textColor := theme.TextColor
	if !b.Clickable() {
		panelColor = theme.DisabledColor
		textColor = theme.CooldownColor
	}

	elems := []Element{
		{
			Name:      root,
			Parent:    ParentOverlay,
			Kind:      KindPanel,
			AnchorMin: fmt.Sprintf("%.2f %.2f", left, stripBottom),
			AnchorMax: fmt.Sprintf("%.2f %.2f", left+buttonWidth, stripTop),
			Color:     "0 0 0 0",
		},
		{
			Name:      panel,
			Parent:    root,
			Kind:      KindPanel,
			AnchorMin: "0 0",
			AnchorMax: "1 1",
			Color:     panelColor,
			Cursor:    true,
		},
		iconElement(panel, b, theme),
		{
			Name:      panel + ".label",
			Parent:    panel,
			Kind:      KindLabel,
			AnchorMin: "0.2 0",
			AnchorMax: "1 1",
			Text:      b.Text(),
			Color:     textColor,
			FontSize:  theme.FontSize,
		},
	}

	if b.Clickable() {
		elems = append(elems, Element{
			Name:      panel + ".button",
			Parent:    panel,
			Kind:      KindButton,
			AnchorMin: "0 0",
			AnchorMax: "1 1",
			Color:     "0 0 0 0",
			Command:   CommandSpawn + " " + string(b.Location),
		})
	}

	return elems
}

func iconElement(panel string, b Button, theme Theme) Element {
	e := Element{
		Name:      panel + ".icon",
		Parent:    panel,
		AnchorMin: "0.02 0.1",
		AnchorMax: "0.18 0.9",
	}
	if b.IconDigest != "" {
		e.Kind = KindRawImage
		e.Image = b.IconDigest
		return e
	}
	e.Kind = KindImage
	e.Sprite = DefaultSprite
	e.Color = theme.TextColor
	return e
}
