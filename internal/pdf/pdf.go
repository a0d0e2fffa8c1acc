// Package pdf assembles the final square book from the manifest and the
// generated illustrations.
package pdf

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/monlivreunique/bookforge/internal/assets"
	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/manifest"
)

// pageSize is the square page edge in millimeters.
const pageSize = 210.0

const margin = 20.0

// fontSpec is the typography for one age band.
type fontSpec struct {
	minAge, maxAge int
	file           string
	size           float64
}

var fontSpecs = []fontSpec{
	{1, 2, "Quicksand-Bold.ttf", 30},
	{3, 3, "Quicksand-Medium.ttf", 26},
	{4, 5, "Quicksand-Regular.ttf", 22},
	{6, 8, "Quicksand-Regular.ttf", 18},
}

// Builder assembles book PDFs. Store holds the page images; FontsDir may
// contain Quicksand TTF files, with Helvetica as the fallback.
type Builder struct {
	Store    assets.Store
	FontsDir string
}

// NewBuilder returns a Builder reading images from the given store.
func NewBuilder(store assets.Store) *Builder {
	return &Builder{Store: store, FontsDir: "fonts"}
}

// Filename is the output name for a book: the child's name and the theme,
// slugified.
func Filename(cfg *config.BookConfig) string {
	return fmt.Sprintf("book_%s_%s.pdf", Slugify(cfg.Child.FirstName), Slugify(cfg.Book.Theme))
}

var slugStrip = regexp.MustCompile(`[^a-z0-9_]`)

// Slugify lowercases, folds accents away and keeps only [a-z0-9_].
func Slugify(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}
	folded = strings.ToLower(strings.ReplaceAll(folded, " ", "_"))
	return slugStrip.ReplaceAllString(folded, "")
}

// Build writes the PDF into outDir and returns its path. Pages follow the
// book order: front cover, dedication, interior pages 3 to 29, optional
// questions page, back cover. A missing image never aborts the build; the
// page carries a placeholder instead.
func (b *Builder) Build(m *manifest.Manifest, cfg *config.BookConfig, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outDir, Filename(cfg))

	doc := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "mm",
		Size:    fpdf.SizeType{Wd: pageSize, Ht: pageSize},
	})
	doc.SetTitle(m.Title, true)
	doc.SetAuthor(fmt.Sprintf("Personalized book for %s", cfg.Child.FirstName), true)
	doc.SetAutoPageBreak(false, 0)
	doc.SetMargins(margin, margin, margin)

	font, size := b.fontForAge(doc, cfg.Child.Age)
	slog.Info("assembling pdf", "font", font, "size", size, "age", cfg.Child.Age)

	bg := m.Palette.BackgroundHex()

	// Front cover.
	doc.AddPage()
	b.drawImagePage(doc, manifest.CoverFrontPage())

	// Dedication.
	doc.AddPage()
	b.drawDedication(doc, cfg.Book.Dedication, font, size, bg)

	// Interior pages.
	for n := manifest.FirstInteriorPage + 1; n <= manifest.LastInteriorPage; n++ {
		page, ok := m.Page(manifest.NumberedPage(n))
		if !ok {
			continue
		}
		doc.AddPage()
		switch page.Type {
		case manifest.KindImage:
			b.drawImagePage(doc, page.Page)
		case manifest.KindText:
			b.drawTextPage(doc, page.Text, font, size, bg)
		}
	}

	// Questions.
	if cfg.Options.IncludeQuestionsPage {
		if page, ok := m.Page(manifest.NumberedPage(manifest.QuestionsPage)); ok && len(page.Questions) > 0 {
			doc.AddPage()
			b.drawQuestions(doc, page.Questions, font, size, bg)
		}
	}

	// Back cover.
	doc.AddPage()
	backText := ""
	if page, ok := m.Page(manifest.CoverBackPage()); ok {
		backText = page.BackCoverText
	}
	b.drawBackCover(doc, backText, font, size)

	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to write pdf: %w", err)
	}
	slog.Info("pdf assembled", "path", path, "pages", doc.PageCount())
	return path, nil
}

// fontForAge registers the Quicksand face for the age band when available
// and returns the font name and size to use.
func (b *Builder) fontForAge(doc *fpdf.Fpdf, age int) (string, float64) {
	for _, spec := range fontSpecs {
		if age < spec.minAge || age > spec.maxAge {
			continue
		}
		path := filepath.Join(b.FontsDir, spec.file)
		if _, err := os.Stat(path); err == nil {
			// Each weight is its own family so selection stays on style "".
			name := strings.TrimSuffix(spec.file, ".ttf")
			doc.AddUTF8Font(name, "", path)
			if doc.Err() {
				doc.ClearError()
				return "Helvetica", spec.size
			}
			return name, spec.size
		}
		return "Helvetica", spec.size
	}
	return "Helvetica", 20
}

func (b *Builder) drawImagePage(doc *fpdf.Fpdf, id manifest.PageID) {
	key := id.Filename()
	data, err := b.Store.Read(key)
	if err != nil {
		slog.Warn("image missing, placing placeholder", "image", key)
		doc.SetFont("Helvetica", "", 14)
		doc.SetTextColor(0x99, 0x99, 0x99)
		doc.SetXY(0, pageSize/2-5)
		doc.CellFormat(pageSize, 10, fmt.Sprintf("[Missing image: %s]", key), "", 0, "C", false, 0, "")
		return
	}
	name := strings.TrimSuffix(key, ".png")
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	doc.ImageOptions(name, 0, 0, pageSize, pageSize, false, opts, 0, "")
}

func (b *Builder) drawTextPage(doc *fpdf.Fpdf, text, font string, size float64, bg string) {
	fillBackground(doc, bg)
	doc.SetTextColor(0x2D, 0x2D, 0x2D)
	doc.SetFont(font, "", size)
	centeredMultiline(doc, text, size*1.5*0.3528)
}

func (b *Builder) drawDedication(doc *fpdf.Fpdf, dedication, font string, size float64, bg string) {
	fillBackground(doc, bg)
	if dedication == "" {
		return
	}
	dedSize := size - 4
	if dedSize < 14 {
		dedSize = 14
	}
	doc.SetTextColor(0x55, 0x55, 0x55)
	doc.SetFont(font, "", dedSize)
	centeredMultiline(doc, dedication, dedSize*1.6*0.3528)
}

func (b *Builder) drawQuestions(doc *fpdf.Fpdf, questions []string, font string, size float64, bg string) {
	fillBackground(doc, bg)

	doc.SetTextColor(0xE8, 0x72, 0x5C)
	doc.SetFont(font, "", size+6)
	doc.SetXY(0, 25)
	doc.CellFormat(pageSize, 12, "Parlons ensemble !", "", 0, "C", false, 0, "")

	qSize := size - 2
	if qSize < 14 {
		qSize = 14
	}
	doc.SetTextColor(0x2D, 0x2D, 0x2D)
	doc.SetFont(font, "", qSize)

	y := 50.0
	for i, q := range questions {
		doc.SetXY(margin, y)
		doc.MultiCell(pageSize-2*margin, qSize*1.4*0.3528, fmt.Sprintf("%d. %s", i+1, q), "", "L", false)
		y = doc.GetY() + 8
	}
}

func (b *Builder) drawBackCover(doc *fpdf.Fpdf, backText, font string, size float64) {
	b.drawImagePage(doc, manifest.CoverBackPage())
	if backText == "" {
		return
	}

	// Darkened band at the bottom so white text stays readable on any wash.
	doc.SetAlpha(0.2, "Normal")
	doc.SetFillColor(0, 0, 0)
	doc.Rect(0, pageSize-60, pageSize, 60, "F")
	doc.SetAlpha(1, "Normal")

	textSize := size - 2
	if textSize < 13 {
		textSize = 13
	}
	doc.SetTextColor(0xFF, 0xFF, 0xFF)
	doc.SetFont(font, "", textSize)
	doc.SetXY(margin, pageSize-50)
	doc.MultiCell(pageSize-2*margin, textSize*1.4*0.3528, backText, "", "C", false)
}

func fillBackground(doc *fpdf.Fpdf, hex string) {
	r, g, b := hexToRGB(hex)
	doc.SetFillColor(r, g, b)
	doc.Rect(0, 0, pageSize, pageSize, "F")
}

// centeredMultiline draws text centered both ways on the page.
func centeredMultiline(doc *fpdf.Fpdf, text string, lineHeight float64) {
	width := pageSize - 2*margin
	lines := doc.SplitText(text, width)
	total := float64(len(lines)) * lineHeight
	y := (pageSize - total) / 2
	doc.SetXY(margin, y)
	doc.MultiCell(width, lineHeight, text, "", "C", false)
}

func hexToRGB(hex string) (int, int, int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0xFF, 0xF8, 0xF0
	}
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return 0xFF, 0xF8, 0xF0
	}
	return r, g, b
}
