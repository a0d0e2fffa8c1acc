package preview

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/manifest"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Title:   "Mina & le jardin secret",
		Palette: manifest.Palette{TextPageBackground: "#FDF3E3 — warm cream"},
		Pages: []manifest.PageSpec{
			{Page: manifest.CoverFrontPage(), Type: manifest.KindImage, ImagePrompt: "cover"},
			{Page: manifest.NumberedPage(3), Type: manifest.KindImage, ImagePrompt: "meadow"},
			{Page: manifest.NumberedPage(4), Type: manifest.KindText, Text: "Mina découvre un portail <caché>."},
			{Page: manifest.NumberedPage(30), Type: manifest.KindQuestions, Questions: []string{"Et toi, qu'aurais-tu fait ?"}},
			{Page: manifest.CoverBackPage(), Type: manifest.KindImage, ImagePrompt: "back", BackCoverText: "Une aventure de Mina."},
		},
	}
}

func TestWriteRendersProof(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.BookConfig{
		Child: config.Child{FirstName: "Mina", Age: 4},
		Book:  config.Book{Dedication: "Pour Mina, avec tout notre amour."},
	}

	path, err := Write(testManifest(), cfg, dir)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != filepath.Join(dir, "preview.html") {
		t.Errorf("unexpected path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)

	for _, want := range []string{
		"Mina &amp; le jardin secret",
		`img src="images/cover_front.png"`,
		`img src="images/page_03.png"`,
		"Mina découvre un portail &lt;caché&gt;.",
		"Pour Mina, avec tout notre amour.",
		"Parlons ensemble !",
		"Et toi, qu&#39;aurais-tu fait ?",
		`img src="images/cover_back.png"`,
		"Une aventure de Mina.",
		"background: #FDF3E3;",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("preview missing %q", want)
		}
	}
}

func TestWriteToleratesSparseManifest(t *testing.T) {
	dir := t.TempDir()
	m := &manifest.Manifest{
		Title: "Un livre sans pages",
		Pages: []manifest.PageSpec{
			{Page: manifest.CoverFrontPage(), Type: manifest.KindImage},
			{Page: manifest.CoverBackPage(), Type: manifest.KindImage},
		},
	}

	path, err := Write(m, &config.BookConfig{}, dir)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)

	if strings.Contains(html, "Page 3") {
		t.Error("sparse manifest should not render interior spreads")
	}
	if strings.Contains(html, "Dédicace") {
		t.Error("no dedication configured, none should render")
	}
	// Default palette fallback keeps the stylesheet valid.
	if !strings.Contains(html, "background: #FFF8F0;") {
		t.Error("default background missing")
	}
}
