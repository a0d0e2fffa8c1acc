package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/monlivreunique/bookforge/internal/assets"
	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/manifest"
)

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Title: "Mina et le jardin secret",
		Palette: manifest.Palette{
			TextPageBackground: "#FDF6EC — warm cream",
		},
		Pages: []manifest.PageSpec{
			{Page: manifest.CoverFrontPage(), Type: manifest.KindImage, ImagePrompt: "cover"},
			{Page: manifest.CoverBackPage(), Type: manifest.KindImageAndText, ImagePrompt: "wash", BackCoverText: "Come along with Mina on a gentle garden adventure."},
			{Page: manifest.NumberedPage(2), Type: manifest.KindDedication},
			{Page: manifest.NumberedPage(3), Type: manifest.KindImage, ImagePrompt: "intro"},
			{Page: manifest.NumberedPage(4), Type: manifest.KindText, Text: "Mina loves her garden. Every morning she waters the flowers."},
			{Page: manifest.NumberedPage(5), Type: manifest.KindImage, ImagePrompt: "watering"},
			{Page: manifest.NumberedPage(30), Type: manifest.KindQuestions, Questions: []string{
				"What did Mina plant?",
				"Why was she patient?",
			}},
		},
	}
}

func testConfig() *config.BookConfig {
	return &config.BookConfig{
		Child: config.Child{FirstName: "Mina", Age: 4},
		Book:  config.Book{Theme: "Le jardin secret", Dedication: "For our little gardener."},
		Options: config.Options{
			IncludeQuestionsPage: true,
		},
	}
}

func populatedStore(t *testing.T, m *manifest.Manifest) assets.Store {
	t.Helper()
	store := assets.NewMem()
	for _, p := range m.ImagePages() {
		if err := store.Write(p.Page.Filename(), pngBytes(t, color.RGBA{R: 120, G: 180, B: 100, A: 255})); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestBuildProducesPDF(t *testing.T) {
	m := testManifest()
	b := NewBuilder(populatedStore(t, m))
	b.FontsDir = t.TempDir() // no TTFs, Helvetica fallback

	path, err := b.Build(m, testConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("pdf not written: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("output is not a PDF")
	}
	if len(data) < 1000 {
		t.Errorf("pdf suspiciously small: %d bytes", len(data))
	}
}

func TestBuildFilename(t *testing.T) {
	m := testManifest()
	b := NewBuilder(populatedStore(t, m))
	b.FontsDir = t.TempDir()

	path, err := b.Build(m, testConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := "book_mina_le_jardin_secret.pdf"
	if got := path[len(path)-len(want):]; got != want {
		t.Errorf("filename = %q, want %q", got, want)
	}
}

func TestBuildToleratesMissingImages(t *testing.T) {
	m := testManifest()
	// Empty store: every image page gets a placeholder.
	b := NewBuilder(assets.NewMem())
	b.FontsDir = t.TempDir()

	path, err := b.Build(m, testConfig(), t.TempDir())
	if err != nil {
		t.Fatalf("Build with missing images failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("pdf not written: %v", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Mina", "mina"},
		{"Le jardin secret", "le_jardin_secret"},
		{"Léo à l'école", "leo_a_lecole"},
		{"Chloé", "chloe"},
		{"Fête de Noël!", "fete_de_noel"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHexToRGB(t *testing.T) {
	r, g, b := hexToRGB("#FDF6EC")
	if r != 0xFD || g != 0xF6 || b != 0xEC {
		t.Errorf("hexToRGB = %d,%d,%d", r, g, b)
	}
	// Garbage falls back to the warm cream default.
	r, g, b = hexToRGB("not-a-color")
	if r != 0xFF || g != 0xF8 || b != 0xF0 {
		t.Errorf("fallback = %d,%d,%d", r, g, b)
	}
}
