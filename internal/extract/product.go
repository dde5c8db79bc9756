// Package extract parses saved scrape files into structured product and
// review records.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ProductTitle pulls the product title from span#productTitle
func ProductTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("span#productTitle").First().Text())
}

// Price pulls the price from span.a-price-whole, without the trailing
// dot the storefront sometimes renders
func Price(doc *goquery.Document) string {
	price := strings.TrimSpace(doc.Find("span.a-price-whole").First().Text())
	return strings.TrimRight(price, ".")
}

// AboutItems extracts the "About this item" bullet points. Three
// strategies, most specific first: the section heading followed by its
// list, the feature-bullets container, then a direct class match.
func AboutItems(doc *goquery.Document) []string {
	var items []string

	doc.Find("h3").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(heading.Text()), "About this item") {
			return true
		}
		list := heading.NextAllFiltered("ul[class*='a-unordered-list']").First()
		if list.Length() == 0 {
			list = heading.Parent().Find("ul[class*='a-unordered-list']").First()
		}
		items = listItems(list)
		return len(items) == 0
	})

	if len(items) == 0 {
		items = listItems(doc.Find("div#feature-bullets ul").First())
	}
	if len(items) == 0 {
		items = listItems(doc.Find("ul.a-unordered-list.a-vertical.a-spacing-small").First())
	}
	return items
}

func listItems(list *goquery.Selection) []string {
	var items []string
	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		text := strings.TrimSpace(li.Find("span.a-list-item").First().Text())
		if text != "" {
			items = append(items, text)
		}
	})
	return items
}
