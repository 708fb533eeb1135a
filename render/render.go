// Package render rasterizes population snapshots into PNG images.
//
// Cells draw as filled circles with a white edge, colored on a viridis
// scale by growth state: quiescent cells at the bottom of the scale,
// differentiating cells mid-scale, trichome tips at the top.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/jonaspleyer/cr-trichome/components"
)

const (
	defaultSize = 1200 // output edge in pixels for an 800-unit domain
	edgeWidth   = 1.5  // cell outline width in pixels
)

var edgeColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// viridis anchor colors at t = 0, 0.1, ..., 1.0.
var viridis = [...][3]uint8{
	{68, 1, 84},
	{72, 40, 120},
	{62, 74, 137},
	{49, 104, 142},
	{38, 130, 142},
	{33, 145, 140},
	{53, 183, 121},
	{109, 205, 89},
	{180, 222, 44},
	{221, 227, 24},
	{253, 231, 37},
}

// Viridis returns the viridis color at t, linearly interpolated between
// anchor points. Values outside [0,1] clamp to the ends.
func Viridis(t float64) color.RGBA {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}

	pos := t * float64(len(viridis)-1)
	i := int(pos)
	if i >= len(viridis)-1 {
		c := viridis[len(viridis)-1]
		return color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
	}

	f := pos - float64(i)
	a, b := viridis[i], viridis[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.RGBA{R: lerp(a[0], b[0]), G: lerp(a[1], b[1]), B: lerp(a[2], b[2]), A: 255}
}

// stageScalar positions a stage on the colormap.
func stageScalar(s components.Stage) float64 {
	switch s {
	case components.StageDifferentiating:
		return 0.6
	case components.StageTrichomeTip:
		return 1
	default:
		return 0
	}
}

// Renderer rasterizes snapshots of one fixed domain.
type Renderer struct {
	// Background fills the image before cells draw. The zero value
	// leaves it transparent.
	Background color.RGBA

	size    int
	domainW float64
	domainH float64
}

// New returns a renderer for a domain of the given extent. size is the
// image width in pixels; zero or negative picks a default. The image
// height follows the domain aspect ratio.
func New(domainW, domainH float64, size int) *Renderer {
	if size <= 0 {
		size = defaultSize
	}
	if domainW <= 0 {
		domainW = 1
	}
	if domainH <= 0 {
		domainH = 1
	}
	return &Renderer{size: size, domainW: domainW, domainH: domainH}
}

// Render draws the population into a fresh image. World Y points up,
// image Y points down; later agents paint over earlier ones.
func (r *Renderer) Render(agents []components.AgentState) *image.RGBA {
	scale := float64(r.size) / r.domainW
	height := int(math.Round(r.domainH * scale))
	if height < 1 {
		height = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, r.size, height))
	if r.Background.A > 0 {
		draw.Draw(img, img.Bounds(), &image.Uniform{C: r.Background}, image.Point{}, draw.Src)
	}

	for _, a := range agents {
		drawCell(img, a, scale, height)
	}
	return img
}

func drawCell(img *image.RGBA, a components.AgentState, scale float64, height int) {
	cx := a.X * scale
	cy := float64(height) - a.Y*scale
	rad := a.Radius * scale
	if rad <= 0 {
		return
	}

	fill := Viridis(stageScalar(a.Stage))
	inner := rad - edgeWidth
	if inner < 0 {
		inner = 0
	}

	minX := max(int(math.Floor(cx-rad)), 0)
	maxX := min(int(math.Ceil(cx+rad)), img.Bounds().Dx()-1)
	minY := max(int(math.Floor(cy-rad)), 0)
	maxY := min(int(math.Ceil(cy+rad)), img.Bounds().Dy()-1)

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			// Sample at the pixel center.
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			switch {
			case d <= inner:
				img.SetRGBA(x, y, fill)
			case d <= rad:
				img.SetRGBA(x, y, edgeColor)
			}
		}
	}
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

// SnapshotPath returns the image path for one iteration under a run
// directory, creating the images directory if needed.
func SnapshotPath(runDir string, step int64) (string, error) {
	dir := filepath.Join(runDir, "images")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating image dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("snapshot-%020d.png", step)), nil
}
