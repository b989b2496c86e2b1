package markdown

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var converter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(htmlrenderer.WithHardWraps()),
)

// ToHTML converts Markdown text to an HTML fragment.
func ToHTML(source []byte) ([]byte, error) {
	var buffer bytes.Buffer
	if err := converter.Convert(source, &buffer); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	return buffer.Bytes(), nil
}

// Document renders source as a standalone HTML page titled title.
func Document(title string, source []byte) ([]byte, error) {
	fragment, err := ToHTML(source)
	if err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	buffer.WriteString("<!DOCTYPE html><html lang=\"en\"><head><meta charset=\"utf-8\"><title>")
	buffer.WriteString(html.EscapeString(title))
	buffer.WriteString("</title></head><body>")
	buffer.Write(fragment)
	buffer.WriteString("</body></html>")
	return buffer.Bytes(), nil
}
