package renderer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/pithecene-io/framesync/types"
)

// Text metrics used by the flow layout estimate.
const (
	charWidth      = 8.0
	lineHeight     = 20.0
	headingHeight  = 32.0
	blockMargin    = 16.0
	blockSelectors = "p, h1, h2, h3, h4, h5, h6, li, pre, blockquote, tr, img, hr"
)

type block struct {
	tag   string
	text  string
	lines int // fixed line count for preformatted blocks, 0 otherwise
}

// HTML renders sanitized markup (typically rendered markdown) as a flow of
// text blocks wrapped at the container width.
type HTML struct {
	*frame
	blocks []block
}

// HTMLBuilder builds HTML renderers. Content is sanitized before layout.
type HTMLBuilder struct {
	Policy *bluemonday.Policy
}

// NewHTMLBuilder returns a builder using the user-generated-content policy.
func NewHTMLBuilder() *HTMLBuilder {
	return &HTMLBuilder{Policy: bluemonday.UGCPolicy()}
}

// BuildOrUpdate implements Builder.
func (b *HTMLBuilder) BuildOrUpdate(req types.RenderRequest, existing Renderer) (Renderer, error) {
	policy := b.Policy
	if policy == nil {
		policy = bluemonday.UGCPolicy()
	}
	clean := policy.Sanitize(req.Data)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(clean))
	if err != nil {
		return nil, fmt.Errorf("html: parse: %w", err)
	}

	blocks := collectBlocks(doc)
	if len(blocks) == 0 {
		return nil, errors.New("html: no renderable content")
	}

	r, ok := existing.(*HTML)
	if !ok {
		r = &HTML{frame: newFrame("html")}
	}
	r.blocks = blocks
	snapshot := append([]block(nil), blocks...)
	r.setLayout(func(width int) (float64, error) {
		return flowHeight(snapshot, width), nil
	})
	r.SetWidth(req.Width)
	return r, nil
}

// Announce implements Announcer.
func (r *HTML) Announce() (types.MessageType, map[string]any) {
	return types.StatusMarkdownLoad, map[string]any{"blocks": len(r.blocks)}
}

func collectBlocks(doc *goquery.Document) []block {
	var blocks []block
	doc.Find(blockSelectors).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks (li inside blockquote) are counted once, innermost wins.
		if s.Find(blockSelectors).Length() > 0 && goquery.NodeName(s) != "pre" {
			return
		}
		tag := goquery.NodeName(s)
		text := strings.TrimSpace(s.Text())
		b := block{tag: tag, text: text}
		switch tag {
		case "pre":
			b.lines = strings.Count(strings.TrimRight(s.Text(), "\n"), "\n") + 1
		case "img", "hr":
		default:
			if text == "" {
				return
			}
		}
		blocks = append(blocks, b)
	})

	if len(blocks) == 0 {
		if text := strings.TrimSpace(doc.Text()); text != "" {
			blocks = append(blocks, block{tag: "p", text: text})
		}
	}
	return blocks
}

func flowHeight(blocks []block, width int) float64 {
	perLine := math.Max(1, math.Floor(float64(width)/charWidth))
	total := 0.0
	for _, b := range blocks {
		switch {
		case b.lines > 0:
			total += float64(b.lines) * lineHeight
		case b.tag == "img":
			total += float64(width) * defaultSVGHeight / defaultSVGWidth
		case b.tag == "hr":
			total += 1
		default:
			lines := math.Ceil(float64(utf8.RuneCountInString(b.text)) / perLine)
			h := lineHeight
			if len(b.tag) == 2 && b.tag[0] == 'h' {
				h = headingHeight
			}
			total += math.Max(1, lines) * h
		}
		total += blockMargin
	}
	return total
}
