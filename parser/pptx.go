package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PPTXParser reads question decks: every text paragraph of every slide
// becomes a line, bold runs become **text** and pictures become inline
// data URLs. Slides are separated by a blank line.
type PPTXParser struct{}

func (p *PPTXParser) SupportedFormats() []string { return []string{"pptx"} }

func (p *PPTXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening PPTX: %w", err)
	}
	defer r.Close()

	// Build file index for quick lookup
	fileIndex := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileIndex[f.Name] = f
	}

	// Collect slide files (ppt/slides/slide1.xml, slide2.xml, ...)
	slideFiles := make(map[int]*zip.File)
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			if num := extractSlideNumber(f.Name); num > 0 {
				slideFiles[num] = f
			}
		}
	}

	// Sort by slide number
	nums := make([]int, 0, len(slideFiles))
	for n := range slideFiles {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var slides []string
	images := 0
	for _, num := range nums {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := readZipFile(slideFiles[num])
		if err != nil {
			continue
		}
		rels := parseRels(fileIndex, fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", num))

		text, n := slideText(data, func(embedID string) string {
			target, ok := rels[embedID]
			if !ok {
				return ""
			}
			return inlineImage(fileIndex, "ppt/slides", target)
		})
		images += n
		if text != "" {
			slides = append(slides, text)
		}
	}

	if len(slides) == 0 {
		return nil, fmt.Errorf("no text found in PPTX")
	}

	return &ParseResult{
		Text:   strings.Join(slides, "\n\n"),
		Method: "native",
		Metadata: map[string]string{
			"format":      "pptx",
			"slide_count": strconv.Itoa(len(nums)),
			"image_count": strconv.Itoa(images),
		},
	}, nil
}

// slideText walks one slide's XML. resolve maps a picture's relationship
// id to an inline image reference. It returns the text and the number of
// images inlined.
func slideText(data []byte, resolve func(embedID string) string) (string, int) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var (
		lines  []string
		spans  []textSpan
		inRun  bool
		inText bool
		bold   bool
		images int
	)
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				spans = spans[:0]
			case "r":
				inRun, bold = true, false
			case "rPr":
				if inRun {
					v := attr(t, "b")
					bold = v == "1" || v == "true"
				}
			case "t":
				inText = inRun
			case "br":
				spans = append(spans, textSpan{text: "\n"})
			case "blip":
				if ref := resolve(attr(t, "embed")); ref != "" {
					lines = append(lines, ref)
					images++
				}
			}
		case xml.CharData:
			if inText {
				spans = appendSpan(spans, string(t), bold)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if line := strings.TrimSpace(renderSpans(spans)); line != "" {
					lines = append(lines, line)
				}
			case "r":
				inRun = false
			case "t":
				inText = false
			}
		}
	}
	return strings.Join(lines, "\n"), images
}

func extractSlideNumber(name string) int {
	// Extract number from "ppt/slides/slide1.xml"
	name = strings.TrimPrefix(name, "ppt/slides/slide")
	name = strings.TrimSuffix(name, ".xml")
	num, err := strconv.Atoi(name)
	if err != nil {
		return 0
	}
	return num
}
