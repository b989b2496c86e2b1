package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tyemirov/mimikry/internal/markdown"
)

const (
	statusPageTitle       = "mimikry"
	htmlContentTypeHeader = "text/html; charset=utf-8"
)

func newStatusPageHandler(domains []string, searchRoots []string) http.HandlerFunc {
	return func(responseWriter http.ResponseWriter, request *http.Request) {
		page, renderErr := markdown.Document(statusPageTitle, []byte(statusPageMarkdown(request.Host, domains, searchRoots)))
		if renderErr != nil {
			http.Error(responseWriter, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		responseWriter.Header().Set(contentTypeHeaderName, htmlContentTypeHeader)
		_, _ = responseWriter.Write(page)
	}
}

func statusPageMarkdown(requestHost string, domains []string, searchRoots []string) string {
	var builder strings.Builder
	builder.WriteString("# mimikry\n\n")
	fmt.Fprintf(&builder, "This host answered as `%s`.\n\n", requestHost)
	builder.WriteString("## Impersonated domains\n\n| Domain |\n| --- |\n")
	for _, domain := range domains {
		fmt.Fprintf(&builder, "| %s |\n", domain)
	}
	builder.WriteString("\n## Artifact search roots\n\nRequests are answered with the first file whose name matches the last path segment.\n\n")
	for _, root := range searchRoots {
		fmt.Fprintf(&builder, "- `%s`\n", root)
	}
	return builder.String()
}
