package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// DOCXParser renders word/document.xml as markdown-flavoured text: one
// line per paragraph, bold runs as **text**, list numbering rendered as
// a literal prefix ("1.", "A.") and embedded images as inline data URLs.
type DOCXParser struct{}

func (p *DOCXParser) SupportedFormats() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	// Build file index for quick lookup
	fileIndex := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileIndex[f.Name] = f
	}

	docFile := fileIndex["word/document.xml"]
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}
	data, err := readZipFile(docFile)
	if err != nil {
		return nil, fmt.Errorf("reading document.xml: %w", err)
	}

	w := &docxWalker{
		rels:      parseRels(fileIndex, "word/_rels/document.xml.rels"),
		numbering: parseDocxNumbering(fileIndex),
		files:     fileIndex,
		counters:  make(map[string][]int),
	}
	text, err := w.walk(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}

	return &ParseResult{
		Text:   text,
		Method: "native",
		Metadata: map[string]string{
			"format":      "docx",
			"paragraphs":  strconv.Itoa(w.paragraphs),
			"image_count": strconv.Itoa(w.images),
		},
	}, nil
}

// ---------------------------------------------------------------------------
// Numbering
// ---------------------------------------------------------------------------

type docxVal struct {
	Val string `xml:"val,attr"`
}

type docxLevel struct {
	ILvl    int      `xml:"ilvl,attr"`
	Start   *docxVal `xml:"start"`
	NumFmt  docxVal  `xml:"numFmt"`
	LvlText docxVal  `xml:"lvlText"`
}

type docxAbstractNum struct {
	ID     string      `xml:"abstractNumId,attr"`
	Levels []docxLevel `xml:"lvl"`
}

type docxNum struct {
	ID       string  `xml:"numId,attr"`
	Abstract docxVal `xml:"abstractNumId"`
}

type docxNumberingXML struct {
	XMLName  xml.Name          `xml:"numbering"`
	Abstract []docxAbstractNum `xml:"abstractNum"`
	Nums     []docxNum         `xml:"num"`
}

// docxNumbering maps a numId to its level definitions, indexed by ilvl.
type docxNumbering map[string][]docxLevel

func parseDocxNumbering(fileIndex map[string]*zip.File) docxNumbering {
	f := fileIndex["word/numbering.xml"]
	if f == nil {
		return nil
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil
	}
	var nx docxNumberingXML
	if err := xml.Unmarshal(data, &nx); err != nil {
		slog.Debug("docx: unreadable numbering.xml", "error", err)
		return nil
	}

	abstract := make(map[string][]docxLevel, len(nx.Abstract))
	for _, a := range nx.Abstract {
		levels := make([]docxLevel, 9)
		for _, l := range a.Levels {
			if l.ILvl >= 0 && l.ILvl < len(levels) {
				levels[l.ILvl] = l
			}
		}
		abstract[a.ID] = levels
	}
	out := make(docxNumbering, len(nx.Nums))
	for _, n := range nx.Nums {
		if levels, ok := abstract[n.Abstract.Val]; ok {
			out[n.ID] = levels
		}
	}
	return out
}

func (l docxLevel) start() int {
	if l.Start == nil {
		return 1
	}
	n, err := strconv.Atoi(l.Start.Val)
	if err != nil {
		return 1
	}
	return n
}

// formatNumber renders n in a w:numFmt style.
func formatNumber(n int, numFmt string) string {
	switch numFmt {
	case "upperLetter":
		return letterNumber(n, 'A')
	case "lowerLetter":
		return letterNumber(n, 'a')
	case "upperRoman":
		return romanNumber(n)
	case "lowerRoman":
		return strings.ToLower(romanNumber(n))
	case "bullet":
		return "-"
	case "none":
		return ""
	default:
		return strconv.Itoa(n)
	}
}

// letterNumber renders 1 -> A, 26 -> Z, 27 -> AA as Word does.
func letterNumber(n int, base byte) string {
	if n < 1 {
		return ""
	}
	repeat := (n-1)/26 + 1
	return strings.Repeat(string(rune(base+byte((n-1)%26))), repeat)
}

func romanNumber(n int) string {
	if n < 1 || n > 3999 {
		return strconv.Itoa(n)
	}
	vals := []int{1000, 900, 500, 400, 100, 90, 50, 40, 10, 9, 5, 4, 1}
	syms := []string{"M", "CM", "D", "CD", "C", "XC", "L", "XL", "X", "IX", "V", "IV", "I"}
	var b strings.Builder
	for i, v := range vals {
		for n >= v {
			b.WriteString(syms[i])
			n -= v
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Document walk
// ---------------------------------------------------------------------------

type docxWalker struct {
	rels      map[string]string
	numbering docxNumbering
	files     map[string]*zip.File
	counters  map[string][]int // numId -> per-level counters

	paragraphs int
	images     int

	// per-paragraph state
	spans   []textSpan
	numID   string
	ilvl    int
	inPPr   bool
	inRun   bool
	inRPr   bool
	inText  bool
	runBold bool
}

func (w *docxWalker) walk(ctx context.Context, data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var lines []string

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
		case xml.CharData:
			if w.inText {
				w.appendText(string(t))
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				lines = append(lines, w.flushParagraph())
			case "pPr":
				w.inPPr = false
			case "r":
				w.inRun = false
			case "rPr":
				w.inRPr = false
			case "t":
				w.inText = false
			}
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func (w *docxWalker) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		w.spans = w.spans[:0]
		w.numID, w.ilvl = "", 0
	case "pPr":
		w.inPPr = true
	case "numId":
		if w.inPPr {
			w.numID = attr(t, "val")
		}
	case "ilvl":
		if w.inPPr {
			w.ilvl, _ = strconv.Atoi(attr(t, "val"))
		}
	case "r":
		w.inRun = true
		w.runBold = false
	case "rPr":
		w.inRPr = w.inRun
	case "b":
		if w.inRPr {
			w.runBold = boolAttr(attr(t, "val"))
		}
	case "t":
		w.inText = w.inRun
	case "tab":
		if w.inRun {
			w.appendText("\t")
		}
	case "br", "cr":
		if w.inRun {
			w.spans = append(w.spans, textSpan{text: "\n"})
		}
	case "blip":
		if ref := w.imageRef(attr(t, "embed")); ref != "" {
			w.spans = append(w.spans, textSpan{text: ref})
		}
	}
}

func (w *docxWalker) appendText(s string) {
	w.spans = appendSpan(w.spans, s, w.runBold)
}

// flushParagraph renders the collected spans as one line, or several
// when the paragraph holds manual line breaks.
func (w *docxWalker) flushParagraph() string {
	w.paragraphs++
	line := renderSpans(w.spans)
	if prefix := w.numberPrefix(); prefix != "" && strings.TrimSpace(line) != "" {
		line = prefix + " " + strings.TrimLeft(line, " \t")
	}
	return line
}

// numberPrefix advances the list counters for the current paragraph and
// returns its rendered label.
func (w *docxWalker) numberPrefix() string {
	if w.numID == "" || w.numID == "0" {
		return ""
	}
	levels, ok := w.numbering[w.numID]
	if !ok || w.ilvl < 0 || w.ilvl >= len(levels) {
		return ""
	}

	counters := w.counters[w.numID]
	if counters == nil {
		counters = make([]int, len(levels))
		w.counters[w.numID] = counters
	}
	lvl := levels[w.ilvl]
	if counters[w.ilvl] == 0 {
		counters[w.ilvl] = lvl.start()
	} else {
		counters[w.ilvl]++
	}
	for i := w.ilvl + 1; i < len(counters); i++ {
		counters[i] = 0
	}

	if lvl.NumFmt.Val == "bullet" {
		return "-"
	}
	label := lvl.LvlText.Val
	if label == "" {
		label = "%" + strconv.Itoa(w.ilvl+1) + "."
	}
	for i := 0; i <= w.ilvl; i++ {
		n := counters[i]
		if n == 0 {
			n = levels[i].start()
		}
		label = strings.ReplaceAll(label, "%"+strconv.Itoa(i+1), formatNumber(n, levels[i].NumFmt.Val))
	}
	return strings.TrimSpace(label)
}

// imageRef resolves a blip relationship id to an inline image reference.
func (w *docxWalker) imageRef(embedID string) string {
	target, ok := w.rels[embedID]
	if embedID == "" || !ok {
		return ""
	}
	ref := inlineImage(w.files, "word", target)
	if ref != "" {
		w.images++
	}
	return ref
}
