package render

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonaspleyer/cr-trichome/components"
)

func TestViridis(t *testing.T) {
	tests := []struct {
		name string
		t    float64
		want color.RGBA
	}{
		{"bottom", 0, color.RGBA{R: 68, G: 1, B: 84, A: 255}},
		{"midpoint anchor", 0.5, color.RGBA{R: 33, G: 145, B: 140, A: 255}},
		{"top", 1, color.RGBA{R: 253, G: 231, B: 37, A: 255}},
		{"clamps below", -3, color.RGBA{R: 68, G: 1, B: 84, A: 255}},
		{"clamps above", 2, color.RGBA{R: 253, G: 231, B: 37, A: 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Viridis(tt.t); got != tt.want {
				t.Errorf("Viridis(%g) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestViridisInterpolatesMonotonically(t *testing.T) {
	// Green rises along the whole scale; interpolation must keep that.
	prev := Viridis(0)
	for i := 1; i <= 100; i++ {
		cur := Viridis(float64(i) / 100)
		if cur.G < prev.G {
			t.Fatalf("green channel drops at t=%g: %d -> %d", float64(i)/100, prev.G, cur.G)
		}
		prev = cur
	}
}

func TestRenderDrawsCells(t *testing.T) {
	r := New(800, 800, 200) // scale 0.25 px per unit

	agents := []components.AgentState{
		{ID: 1, X: 400, Y: 400, Radius: 40, Stage: components.StageGrowing},
		{ID: 2, X: 100, Y: 400, Radius: 40, Stage: components.StageTrichomeTip},
		{ID: 3, X: 400, Y: 700, Radius: 40, Stage: components.StageGrowing},
	}
	img := r.Render(agents)

	if got := img.Bounds().Dx(); got != 200 {
		t.Fatalf("width = %d, want 200", got)
	}
	if got := img.Bounds().Dy(); got != 200 {
		t.Fatalf("height = %d, want 200", got)
	}

	growing := Viridis(0)
	tip := Viridis(1)

	// Cell centers: world (400,400) -> pixel (100,100); the world Y axis
	// points up, so (400,700) lands near the image top at (100,25).
	if got := img.RGBAAt(100, 100); got != growing {
		t.Errorf("growing cell center = %v, want %v", got, growing)
	}
	if got := img.RGBAAt(25, 100); got != tip {
		t.Errorf("tip cell center = %v, want %v", got, tip)
	}
	if got := img.RGBAAt(100, 25); got != growing {
		t.Errorf("high-Y cell should draw near the top, got %v at (100,25)", got)
	}
	if got := img.RGBAAt(100, 175); got != (color.RGBA{}) {
		t.Errorf("mirrored position should be empty, got %v at (100,175)", got)
	}

	// Radius 40 scales to 10 px: the rim is white, just inside is fill.
	if got := img.RGBAAt(100, 91); got != edgeColor {
		t.Errorf("rim pixel = %v, want %v", got, edgeColor)
	}
	if got := img.RGBAAt(100, 93); got != growing {
		t.Errorf("pixel inside rim = %v, want %v", got, growing)
	}
	if got := img.RGBAAt(100, 88); got != (color.RGBA{}) {
		t.Errorf("pixel outside cell = %v, want transparent", got)
	}

	// Corner stays at the transparent background.
	if got := img.RGBAAt(0, 0); got != (color.RGBA{}) {
		t.Errorf("background = %v, want transparent", got)
	}
}

func TestRenderBackgroundFill(t *testing.T) {
	r := New(800, 800, 100)
	r.Background = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	img := r.Render(nil)
	if got := img.RGBAAt(50, 50); got != r.Background {
		t.Errorf("background fill = %v, want %v", got, r.Background)
	}
}

func TestRenderClipsOutOfBoundsCells(t *testing.T) {
	r := New(800, 800, 100)
	// Centers at the domain corners must not panic or write outside.
	agents := []components.AgentState{
		{ID: 1, X: 0, Y: 0, Radius: 30, Stage: components.StageGrowing},
		{ID: 2, X: 800, Y: 800, Radius: 30, Stage: components.StageGrowing},
	}
	img := r.Render(agents)
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 100 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
}

func TestWritePNGAndSnapshotPath(t *testing.T) {
	runDir := t.TempDir()

	path, err := SnapshotPath(runDir, 50)
	if err != nil {
		t.Fatalf("SnapshotPath: %v", err)
	}
	want := filepath.Join(runDir, "images", "snapshot-00000000000000000050.png")
	if path != want {
		t.Errorf("SnapshotPath = %q, want %q", path, want)
	}

	r := New(800, 800, 64)
	img := r.Render([]components.AgentState{
		{ID: 1, X: 400, Y: 400, Radius: 100, Stage: components.StageTrichomeTip},
	})
	if err := WritePNG(path, img); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening written image: %v", err)
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("decoded bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}

	wr, wg, wb, wa := Viridis(1).RGBA()
	gr, gg, gb, ga := decoded.At(32, 32).RGBA()
	if gr != wr || gg != wg || gb != wb || ga != wa {
		t.Errorf("center pixel = %v, want %v", decoded.At(32, 32), Viridis(1))
	}
}
