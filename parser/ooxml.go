package parser

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"path"
	"strings"
)

// Helpers shared by the DOCX and PPTX parsers.

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// parseRels reads a .rels part and returns a map of rId -> target path.
func parseRels(fileIndex map[string]*zip.File, relsPath string) map[string]string {
	relsFile := fileIndex[relsPath]
	if relsFile == nil {
		return nil
	}
	data, err := readZipFile(relsFile)
	if err != nil {
		return nil
	}

	var rels ooxmlRelationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil
	}

	result := make(map[string]string, len(rels.Rels))
	for _, rel := range rels.Rels {
		result[rel.ID] = rel.Target
	}
	return result
}

// ooxmlRelationships represents the .rels XML structure.
type ooxmlRelationships struct {
	XMLName xml.Name            `xml:"Relationships"`
	Rels    []ooxmlRelationship `xml:"Relationship"`
}

type ooxmlRelationship struct {
	ID     string `xml:"Id,attr"`
	Target string `xml:"Target,attr"`
	Type   string `xml:"Type,attr"`
}

// textSpan is a run of paragraph text with uniform boldness. A span whose
// text is "\n" is a manual line break.
type textSpan struct {
	text string
	bold bool
}

// appendSpan adds s to spans, merging it into the previous span when the
// boldness matches.
func appendSpan(spans []textSpan, s string, bold bool) []textSpan {
	if n := len(spans); n > 0 && spans[n-1].bold == bold && spans[n-1].text != "\n" {
		spans[n-1].text += s
		return spans
	}
	return append(spans, textSpan{text: s, bold: bold})
}

// renderSpans writes spans as one markdown line, wrapping bold text in
// ** and keeping surrounding spaces outside the markers.
func renderSpans(spans []textSpan) string {
	var b strings.Builder
	for _, s := range spans {
		if !s.bold || strings.TrimSpace(s.text) == "" {
			b.WriteString(s.text)
			continue
		}
		lead := s.text[:len(s.text)-len(strings.TrimLeft(s.text, " \t"))]
		trail := s.text[len(strings.TrimRight(s.text, " \t")):]
		b.WriteString(lead)
		b.WriteString("**")
		b.WriteString(strings.Trim(s.text, " \t"))
		b.WriteString("**")
		b.WriteString(trail)
	}
	return strings.TrimRight(b.String(), " \t")
}

// inlineImage loads the media part target (relative to dir) and returns
// it as a markdown image with a base64 data URL, or "" when the part is
// missing or not an image.
func inlineImage(fileIndex map[string]*zip.File, dir, target string) string {
	mediaPath := path.Clean(dir + "/" + strings.ReplaceAll(target, "\\", "/"))
	zf := fileIndex[mediaPath]
	if zf == nil {
		slog.Debug("ooxml: image file not found in ZIP", "path", mediaPath)
		return ""
	}
	imgData, err := readZipFile(zf)
	if err != nil {
		slog.Debug("ooxml: failed to read image file", "path", mediaPath, "error", err)
		return ""
	}

	mimeType := mimeFromExt(path.Ext(zf.Name))
	if mimeType == "" {
		return ""
	}
	if decodable(mimeType) {
		if w, h := imageSize(imgData); w == 0 || h == 0 {
			slog.Debug("ooxml: skipping undecodable image", "path", mediaPath)
			return ""
		}
	}
	return "![](data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imgData) + ")"
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// boolAttr reads an OOXML on/off attribute; a missing value means on.
func boolAttr(v string) bool {
	return v == "" || v == "1" || v == "true" || v == "on"
}

// mimeFromExt returns the MIME type for common image extensions.
func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".tiff", ".tif":
		return "image/tiff"
	case ".emf":
		return "image/emf"
	case ".wmf":
		return "image/wmf"
	default:
		return ""
	}
}

// decodable reports whether the registered image decoders can read mime.
func decodable(mime string) bool {
	switch mime {
	case "image/png", "image/jpeg", "image/gif":
		return true
	}
	return false
}

// imageSize returns the width and height of an image from its encoded bytes.
func imageSize(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
