package client

import (
	"bytes"
	"fmt"
	"strings"
)

// Point is one coordinate of a stroke, in whiteboard space (origin top-left).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is a single pen polyline.
type Stroke struct {
	Points []Point `json:"points"`
	Width  float64 `json:"width"`
}

// Page holds the strokes drawn on one whiteboard page.
type Page struct {
	Width   float64  `json:"width"`
	Height  float64  `json:"height"`
	Strokes []Stroke `json:"strokes"`
}

// Whiteboard captures the full exam canvas: one page per answer sheet.
type Whiteboard struct {
	Pages []Page `json:"pages"`
}

// PageRenderer produces the final PDF bytes for upload. Whiteboard satisfies
// it; richer front ends can plug in their own renderer.
type PageRenderer interface {
	RenderPDF() ([]byte, error)
}

// RenderPDF serializes every page into one uncompressed PDF. Strokes become
// stroked paths; coordinates are flipped since PDF puts the origin at the
// bottom-left.
func (w Whiteboard) RenderPDF() ([]byte, error) {
	if len(w.Pages) == 0 {
		return nil, fmt.Errorf("whiteboard has no pages")
	}

	var body bytes.Buffer
	offsets := []int{0} // object 0 is the free-list head
	writeObject := func(content string) {
		offsets = append(offsets, body.Len())
		body.WriteString(content)
	}

	body.WriteString("%PDF-1.4\n")

	pageCount := len(w.Pages)
	// Object layout: 1 catalog, 2 page tree, then (page, content) pairs.
	kids := make([]string, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+i*2))
	}

	writeObject("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	writeObject(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), pageCount))

	for i, page := range w.Pages {
		width, height := page.Width, page.Height
		if width <= 0 {
			width = 612
		}
		if height <= 0 {
			height = 792
		}

		pageObj := 3 + i*2
		contentObj := pageObj + 1

		writeObject(fmt.Sprintf(
			"%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %.2f %.2f] /Contents %d 0 R >>\nendobj\n",
			pageObj, width, height, contentObj,
		))

		stream := renderPageStream(page, height)
		writeObject(fmt.Sprintf(
			"%d 0 obj\n<< /Length %d >>\nstream\n%sendstream\nendobj\n",
			contentObj, len(stream), stream,
		))
	}

	xrefOffset := body.Len()
	body.WriteString(fmt.Sprintf("xref\n0 %d\n", len(offsets)))
	body.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets[1:] {
		body.WriteString(fmt.Sprintf("%010d 00000 n \n", offset))
	}
	body.WriteString(fmt.Sprintf(
		"trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets), xrefOffset,
	))

	return body.Bytes(), nil
}

func renderPageStream(page Page, height float64) string {
	var stream bytes.Buffer
	for _, stroke := range page.Strokes {
		if len(stroke.Points) < 2 {
			continue
		}

		width := stroke.Width
		if width <= 0 {
			width = 1
		}
		stream.WriteString(fmt.Sprintf("%.2f w\n", width))

		first := stroke.Points[0]
		stream.WriteString(fmt.Sprintf("%.2f %.2f m\n", first.X, height-first.Y))
		for _, point := range stroke.Points[1:] {
			stream.WriteString(fmt.Sprintf("%.2f %.2f l\n", point.X, height-point.Y))
		}
		stream.WriteString("S\n")
	}

	return stream.String()
}
