// Package parser extracts structured records from catalog HTML. It is the
// site-specific collaborator: selectors here match the books.toscrape.com
// page shape and nothing outside this package knows about HTML.
package parser

import (
	"bytes"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

var ratingWords = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

var priceDigits = regexp.MustCompile(`[\d.]+`)

// BookParser implements catalog.Parser for the books.toscrape.com layout.
type BookParser struct{}

// New returns a BookParser.
func New() *BookParser {
	return &BookParser{}
}

// ParseIndexPage extracts record links and the next-page cursor from a
// catalog listing page. Relative links are resolved against baseURL, which
// must be the listing page's own URL.
func (p *BookParser) ParseIndexPage(content []byte, baseURL string) (catalog.IndexPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return catalog.IndexPage{}, &catalog.ParseError{URL: baseURL, Reason: err.Error()}
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return catalog.IndexPage{}, &catalog.ParseError{URL: baseURL, Reason: "invalid base url"}
	}

	var page catalog.IndexPage
	doc.Find("article.product_pod h3 a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		page.RecordURLs = append(page.RecordURLs, resolve(base, href))
	})

	if href, ok := doc.Find("li.next a").First().Attr("href"); ok && href != "" {
		page.NextPageURL = resolve(base, href)
	}

	return page, nil
}

// ParseRecordPage extracts one record from an item detail page. A page
// without the expected product markup yields a ParseError.
func (p *BookParser) ParseRecordPage(content []byte, pageURL string) (catalog.Record, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return catalog.Record{}, &catalog.ParseError{URL: pageURL, Reason: err.Error()}
	}

	name := strings.TrimSpace(doc.Find("div.product_main h1").First().Text())
	if name == "" {
		return catalog.Record{}, &catalog.ParseError{URL: pageURL, Reason: "missing product name"}
	}

	rec := catalog.Record{
		SourceURL:   pageURL,
		Name:        name,
		Description: strings.TrimSpace(doc.Find("#product_description ~ p").First().Text()),
		Category:    "Unknown",
	}

	breadcrumb := doc.Find("ul.breadcrumb li")
	if breadcrumb.Length() > 2 {
		rec.Category = strings.TrimSpace(breadcrumb.Eq(2).Text())
	}

	info := map[string]string{}
	doc.Find("table.table-striped tr").Each(func(_ int, row *goquery.Selection) {
		header := strings.TrimSpace(row.Find("th").First().Text())
		value := strings.TrimSpace(row.Find("td").First().Text())
		if header != "" {
			info[header] = value
		}
	})

	rec.PriceInclTax = parsePrice(info["Price (incl. tax)"])
	rec.PriceExclTax = parsePrice(info["Price (excl. tax)"])
	if avail, ok := info["Availability"]; ok {
		rec.Availability = avail
	} else {
		rec.Availability = "Unknown"
	}
	if reviews, ok := info["Number of reviews"]; ok {
		if n, err := strconv.Atoi(reviews); err == nil {
			rec.ReviewCount = n
		}
	}

	if classes, ok := doc.Find("p.star-rating").First().Attr("class"); ok {
		for _, cls := range strings.Fields(classes) {
			if n, ok := ratingWords[cls]; ok {
				rec.Rating = n
				break
			}
		}
	}

	if src, ok := doc.Find("div.item.active img").First().Attr("src"); ok && src != "" {
		if base, err := url.Parse(pageURL); err == nil {
			rec.ImageURL = resolve(base, src)
		}
	}

	return rec, nil
}

// parsePrice extracts the numeric amount from a price like "£51.77".
func parsePrice(raw string) float64 {
	match := priceDigits.FindString(raw)
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return value
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
