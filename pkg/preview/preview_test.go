package preview

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"gradient-infill-go/pkg/geometry"
	"gradient-infill-go/pkg/gradient"
)

func move(layer int, x1, y1, x2, y2, ratio float64) gradient.Move {
	return gradient.Move{
		Layer:   layer,
		Segment: geometry.Segment{P1: geometry.Point{X: x1, Y: y1}, P2: geometry.Point{X: x2, Y: y2}},
		Ratio:   ratio,
	}
}

func TestCollectorFiltersLayer(t *testing.T) {
	c := NewCollector(2)
	c.ObserveMove(move(1, 0, 0, 1, 1, 1))
	c.ObserveMove(move(2, 0, 0, 1, 1, 1))
	c.ObserveMove(move(3, 0, 0, 1, 1, 1))

	if got := c.Moves(); len(got) != 1 || got[0].Layer != 2 {
		t.Errorf("unexpected moves %+v", got)
	}

	all := NewCollector(AllLayers)
	all.ObserveMove(move(1, 0, 0, 1, 1, 1))
	all.ObserveMove(move(7, 0, 0, 1, 1, 1))
	if len(all.Moves()) != 2 {
		t.Errorf("AllLayers kept %d moves", len(all.Moves()))
	}
}

func TestBounds(t *testing.T) {
	if _, ok := Bounds(nil); ok {
		t.Error("empty input should have no bounds")
	}
	b, ok := Bounds([]gradient.Move{move(0, 5, -2, 1, 3, 1), move(0, 4, 4, 8, 0, 1)})
	if !ok || b.LLx != 1 || b.LLy != -2 || b.URx != 8 || b.URy != 4 {
		t.Errorf("Bounds = %+v", b)
	}
}

func TestRatioColor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  color.RGBA
	}{
		{0.5, color.RGBA{B: 255, A: 255}},
		{3.5, color.RGBA{R: 255, A: 255}},
		{10, color.RGBA{R: 255, A: 255}},
		{2, color.RGBA{R: 128, B: 128, A: 255}},
	}
	for _, tt := range tests {
		if got := RatioColor(tt.ratio, 0.5, 3.5); got != tt.want {
			t.Errorf("RatioColor(%v) = %v, want %v", tt.ratio, got, tt.want)
		}
	}
	if got := RatioColor(1, 1, 1); got.B != 255 {
		t.Errorf("flat range should be blue, got %v", got)
	}
}

func TestRender(t *testing.T) {
	moves := []gradient.Move{
		move(0, 0, 0, 10, 0, 3),     // bottom, red
		move(0, 0, 10, 10, 10, 0.5), // top, blue
	}
	opts := DefaultOptions()
	opts.Width, opts.Height, opts.Margin, opts.LineWidth = 100, 100, 10, 4

	img, err := Render(moves, opts)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 100 {
		t.Fatalf("size %v", img.Bounds())
	}

	bottom := img.RGBAAt(50, 90)
	if bottom.R < 200 || bottom.B > 50 {
		t.Errorf("bottom move should be red, got %v", bottom)
	}
	top := img.RGBAAt(50, 10)
	if top.B < 200 || top.R > 50 {
		t.Errorf("top move should be blue, got %v", top)
	}
	if bg := img.RGBAAt(50, 50); bg != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("background = %v", bg)
	}
}

func TestRenderErrors(t *testing.T) {
	opts := DefaultOptions()
	if _, err := Render(nil, opts); err == nil {
		t.Error("expected error for no moves")
	}
	opts.Width = 0
	if _, err := Render([]gradient.Move{move(0, 0, 0, 1, 1, 1)}, opts); err == nil {
		t.Error("expected error for empty canvas")
	}
	opts = DefaultOptions()
	opts.Margin = 400
	if _, err := Render([]gradient.Move{move(0, 0, 0, 1, 1, 1)}, opts); err == nil {
		t.Error("expected error for oversized margin")
	}
}

func TestWritePNG(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 64, 32
	img, err := Render([]gradient.Move{move(0, 0, 0, 1, 1, 1)}, opts)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WritePNG(&buf, img); err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("decoded bounds %v, want %v", decoded.Bounds(), img.Bounds())
	}
}
