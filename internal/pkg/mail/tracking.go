package mail

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/speedai/speedai/internal/pkg/security"
)

// Tracking describes the per-recipient tracking endpoints of one send.
type Tracking struct {
	BaseURL    string
	TrackingID string
	Secret     string
}

func (t Tracking) base() string { return strings.TrimRight(t.BaseURL, "/") }

// OpenURL is the 1x1 pixel endpoint.
func (t Tracking) OpenURL() string {
	return fmt.Sprintf("%s/api/marketing/track/open/%s", t.base(), url.PathEscape(t.TrackingID))
}

// UnsubscribeURL is the public unsubscribe page.
func (t Tracking) UnsubscribeURL() string {
	return fmt.Sprintf("%s/unsubscribe/%s", t.base(), url.PathEscape(t.TrackingID))
}

// ClickURL wraps target in the signed click redirect.
func (t Tracking) ClickURL(target string) (string, error) {
	sig, err := security.SignLink(t.TrackingID, target, t.Secret)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("url", target)
	q.Set("sig", sig)
	return fmt.Sprintf("%s/api/marketing/track/click/%s?%s", t.base(), url.PathEscape(t.TrackingID), q.Encode()), nil
}

// Headers returns the List-Unsubscribe headers for the send.
func (t Tracking) Headers() map[string]string {
	return map[string]string{
		"List-Unsubscribe":      "<" + t.UnsubscribeURL() + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
	}
}

func isTrackableLink(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	if h == "" || strings.HasPrefix(h, "#") {
		return false
	}
	for _, p := range []string{"mailto:", "tel:", "sms:", "javascript:"} {
		if strings.HasPrefix(h, p) {
			return false
		}
	}
	return true
}

// PrepareMarketingHTML rewrites links through the click redirect and appends
// the open pixel and the unsubscribe footer.
func PrepareMarketingHTML(body string, t Tracking) (string, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse campaign html: %w", err)
	}

	var bodyNode *html.Node
	var walkErr error
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Body:
				bodyNode = n
			case atom.A:
				for i, attr := range n.Attr {
					if attr.Key != "href" || !isTrackableLink(attr.Val) {
						continue
					}
					wrapped, err := t.ClickURL(strings.TrimSpace(attr.Val))
					if err != nil {
						walkErr = err
						return
					}
					n.Attr[i].Val = wrapped
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if walkErr != nil {
		return "", walkErr
	}
	if bodyNode == nil {
		return "", fmt.Errorf("campaign html has no body")
	}

	footer := &html.Node{Type: html.ElementNode, DataAtom: atom.P, Data: "p", Attr: []html.Attribute{
		{Key: "style", Val: "font-size:12px;color:#888;text-align:center;margin-top:24px"},
	}}
	footer.AppendChild(&html.Node{Type: html.TextNode, Data: "Vous ne souhaitez plus recevoir nos messages ? "})
	link := &html.Node{Type: html.ElementNode, DataAtom: atom.A, Data: "a", Attr: []html.Attribute{
		{Key: "href", Val: t.UnsubscribeURL()},
	}}
	link.AppendChild(&html.Node{Type: html.TextNode, Data: "Se désabonner"})
	footer.AppendChild(link)
	bodyNode.AppendChild(footer)

	bodyNode.AppendChild(&html.Node{Type: html.ElementNode, DataAtom: atom.Img, Data: "img", Attr: []html.Attribute{
		{Key: "src", Val: t.OpenURL()},
		{Key: "width", Val: "1"},
		{Key: "height", Val: "1"},
		{Key: "alt", Val: ""},
		{Key: "style", Val: "display:none"},
	}})

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}
