package markdown

import (
	"strings"
	"testing"
)

func TestDocumentWrapsRenderedMarkdown(t *testing.T) {
	document, err := Document("a <b> title", []byte("# Heading\n\n| Domain |\n| --- |\n| example.test |\n"))
	if err != nil {
		t.Fatalf("render document: %v", err)
	}
	rendered := string(document)
	for _, expected := range []string{
		"<title>a &lt;b&gt; title</title>",
		"<h1>Heading</h1>",
		"<td>example.test</td>",
	} {
		if !strings.Contains(rendered, expected) {
			t.Fatalf("expected %q in %s", expected, rendered)
		}
	}
}
