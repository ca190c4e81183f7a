package webdriver

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
)

const (
	// EntityElementID is the id of the script element that carries the
	// entity document of a rendered page
	EntityElementID string = "hyperstate-entity"
	// ProblemElementID is the id of the script element that carries the
	// problem report of a page rendered for a failed request
	ProblemElementID string = "hyperstate-problem"
)

// extractDocument finds the entity document embedded in a rendered page. A
// page that only carries a problem report yields the error it describes, and
// a page with neither, such as an error page from a proxy, is a transport
// failure.
func extractDocument(page string) ([]byte, error) {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, errors.NewTransportError("failed to parse page", err)
	}

	if body, ok := findScript(root, EntityElementID, hyperstate.MediaType); ok {
		return []byte(body), nil
	}

	if body, ok := findScript(root, ProblemElementID, errors.ProblemReportContentType); ok {
		return nil, errors.NewErrorFromProblemReport(0, errors.ProblemReportContentType, []byte(body))
	}

	return nil, errors.NewTransportError(fmt.Sprintf("page has neither a %s nor a %s element", EntityElementID, ProblemElementID), nil)
}

func findScript(n *html.Node, id, contentType string) (string, bool) {
	if n.Type == html.ElementNode && n.Data == "script" && attr(n, "id") == id && attr(n, "type") == contentType {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return sb.String(), true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body, ok := findScript(c, id, contentType); ok {
			return body, true
		}
	}

	return "", false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
