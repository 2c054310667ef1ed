// Package htmlclean post-processes captured HTML into a self-contained
// snapshot according to archive.CaptureSettings.
package htmlclean

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

// ErrEmptyDocument is returned when there is nothing to archive.
var ErrEmptyDocument = errors.New("captured document is empty")

const hiddenSelector = `[hidden], [style*="display:none"], [style*="display: none"], ` +
	`[style*="visibility:hidden"], [style*="visibility: hidden"]`

// Clean applies settings to doc and stamps a "saved from" comment naming
// pageURL and capturedAt.
func Clean(doc, pageURL string, settings archive.CaptureSettings, capturedAt time.Time) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return "", ErrEmptyDocument
	}
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse captured html: %w", err)
	}

	if settings.RemoveScripts {
		removeScripts(parsed)
	}
	if settings.RemoveFrames {
		parsed.Find("iframe, frame, frameset, object, embed").Remove()
	}
	if settings.RemoveHiddenElements {
		parsed.Find(hiddenSelector).Not("head, head *").Remove()
	}
	if settings.LoadDeferredImages {
		promoteLazyImages(parsed)
	}
	if settings.InsertBaseHref && pageURL != "" && parsed.Find("base[href]").Length() == 0 {
		parsed.Find("head").First().PrependHtml(fmt.Sprintf(`<base href="%s">`, html.EscapeString(pageURL)))
	}
	stampSavedFrom(parsed, pageURL, capturedAt)

	out, err := parsed.Html()
	if err != nil {
		return "", fmt.Errorf("render cleaned html: %w", err)
	}
	return out, nil
}

func removeScripts(doc *goquery.Document) {
	doc.Find("script, noscript").Remove()
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if !strings.HasPrefix(strings.ToLower(attr.Key), "on") {
					kept = append(kept, attr)
				}
			}
			node.Attr = kept
		}
	})
}

func promoteLazyImages(doc *goquery.Document) {
	doc.Find("img[data-src], img[data-srcset], source[data-srcset]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("data-src"); ok && src != "" {
			sel.SetAttr("src", src)
			sel.RemoveAttr("data-src")
		}
		if srcset, ok := sel.Attr("data-srcset"); ok && srcset != "" {
			sel.SetAttr("srcset", srcset)
			sel.RemoveAttr("data-srcset")
		}
		sel.RemoveAttr("loading")
	})
}

func stampSavedFrom(doc *goquery.Document, pageURL string, capturedAt time.Time) {
	if len(doc.Nodes) == 0 {
		return
	}
	root := doc.Nodes[0]
	comment := &html.Node{
		Type: html.CommentNode,
		Data: fmt.Sprintf("\n Page saved with web-archive-agent\n url: %s\n saved date: %s\n",
			strings.ReplaceAll(pageURL, "--", "%2D%2D"),
			capturedAt.UTC().Format(time.RFC1123),
		),
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode {
			root.InsertBefore(comment, child)
			return
		}
	}
	root.AppendChild(comment)
}
