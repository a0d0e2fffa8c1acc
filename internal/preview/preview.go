// Package preview renders an HTML proof of the book from the manifest and
// the generated page images, for review before PDF assembly.
package preview

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/manifest"
)

// Filename of the proof document, written next to the images directory so
// relative image links resolve.
const Filename = "preview.html"

type page struct {
	Label     string
	ImageSrc  string
	Text      string
	Questions []string
	BackText  string
	Class     string
}

type spread struct {
	Single bool
	Pages  []page
}

type view struct {
	Title      string
	Background template.CSS
	Spreads    []spread
}

// Write renders the proof into outputDir and returns its path. Missing
// images are not an error; the browser shows the gap.
func Write(m *manifest.Manifest, cfg *config.BookConfig, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outputDir, Filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create preview file: %w", err)
	}
	defer f.Close()

	if err := proofTemplate.Execute(f, buildView(m, cfg)); err != nil {
		return "", fmt.Errorf("failed to render preview: %w", err)
	}
	return path, nil
}

func buildView(m *manifest.Manifest, cfg *config.BookConfig) view {
	v := view{
		Title: m.Title,
		// BackgroundHex only ever returns a #rrggbb literal, so it is safe
		// to splice into the stylesheet.
		Background: template.CSS(m.Palette.BackgroundHex()),
	}

	v.Spreads = append(v.Spreads, spread{Single: true, Pages: []page{{
		Label:    "Couverture",
		ImageSrc: "images/" + manifest.CoverFrontPage().Filename(),
	}}})

	if cfg.Book.Dedication != "" {
		v.Spreads = append(v.Spreads, spread{Single: true, Pages: []page{{
			Label: "Page 2 — Dédicace",
			Text:  cfg.Book.Dedication,
			Class: "dedication",
		}}})
	}

	// Interior pages as facing pairs, like the printed book.
	for n := 3; n <= manifest.LastInteriorPage; n += 2 {
		var pages []page
		for _, num := range []int{n, n + 1} {
			if num > manifest.LastInteriorPage {
				continue
			}
			spec, ok := m.Page(manifest.NumberedPage(num))
			if !ok {
				continue
			}
			pages = append(pages, interiorPage(num, *spec))
		}
		if len(pages) > 0 {
			v.Spreads = append(v.Spreads, spread{Pages: pages})
		}
	}

	if q, ok := m.Page(manifest.NumberedPage(manifest.QuestionsPage)); ok && len(q.Questions) > 0 {
		v.Spreads = append(v.Spreads, spread{Single: true, Pages: []page{{
			Label:     fmt.Sprintf("Page %d", manifest.QuestionsPage),
			Questions: q.Questions,
			Class:     "questions",
		}}})
	}

	back := page{
		Label:    "Couverture arrière",
		ImageSrc: "images/" + manifest.CoverBackPage().Filename(),
	}
	if spec, ok := m.Page(manifest.CoverBackPage()); ok {
		back.BackText = spec.BackCoverText
	}
	v.Spreads = append(v.Spreads, spread{Single: true, Pages: []page{back}})

	return v
}

func interiorPage(num int, spec manifest.PageSpec) page {
	p := page{Label: fmt.Sprintf("Page %d", num)}
	if spec.HasImage() {
		p.ImageSrc = "images/" + spec.Page.Filename()
		return p
	}
	p.Text = spec.Text
	p.Class = "text-page"
	return p
}

var proofTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="UTF-8">
<title>{{.Title}} — Prévisualisation</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: 'Quicksand', 'Segoe UI', sans-serif; background: #f0f0f0; padding: 20px; }
  h1 { text-align: center; margin: 20px 0 30px; color: #333; }
  .spread {
    display: flex; justify-content: center; gap: 4px;
    margin: 10px auto; max-width: 1100px;
  }
  .page {
    width: 500px; height: 500px;
    border: 1px solid #ddd; border-radius: 4px;
    overflow: hidden; position: relative;
    background: white;
  }
  .page img { width: 100%; height: 100%; object-fit: cover; }
  .page.text-page {
    display: flex; align-items: center; justify-content: center;
    padding: 40px; text-align: center;
    background: {{.Background}}; color: #2D2D2D;
    font-size: 18px; line-height: 1.6;
  }
  .page.dedication {
    font-style: italic; color: #555;
    background: {{.Background}};
    display: flex; align-items: center; justify-content: center;
    padding: 40px; text-align: center; font-size: 16px;
  }
  .page.questions {
    background: {{.Background}}; padding: 30px;
    display: flex; flex-direction: column; justify-content: center;
  }
  .page.questions h2 { color: #E8725C; text-align: center; margin-bottom: 20px; }
  .page.questions ol { padding-left: 20px; }
  .page.questions li { margin: 12px 0; font-size: 16px; color: #2D2D2D; }
  .back-text {
    position: absolute; bottom: 0; left: 0; right: 0;
    background: rgba(0,0,0,0.4); color: white;
    padding: 20px; text-align: center; font-size: 14px;
  }
  .label {
    position: absolute; top: 5px; left: 5px;
    background: rgba(0,0,0,0.6); color: white;
    padding: 2px 8px; border-radius: 3px; font-size: 11px;
  }
  .single { justify-content: center; }
  .single .page { margin: 0 auto; }
  hr { margin: 20px auto; max-width: 600px; border: none; border-top: 2px dashed #ccc; }
</style>
</head>
<body>
<h1>📖 {{.Title}}</h1>
{{range .Spreads}}
<div class="spread{{if .Single}} single{{end}}">
{{- range .Pages}}
  <div class="page{{with .Class}} {{.}}{{end}}">
    {{- if .ImageSrc}}
    <img src="{{.ImageSrc}}" alt="{{.Label}}">
    {{- end}}
    {{- if .Text}}
    <p>{{.Text}}</p>
    {{- end}}
    {{- if .Questions}}
    <h2>Parlons ensemble !</h2>
    <ol>
    {{- range .Questions}}
      <li>{{.}}</li>
    {{- end}}
    </ol>
    {{- end}}
    {{- if .BackText}}
    <div class="back-text">{{.BackText}}</div>
    {{- end}}
    <span class="label">{{.Label}}</span>
  </div>
{{- end}}
</div>
<hr>
{{end}}
</body>
</html>
`))
