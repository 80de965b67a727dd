// Package imobiliare holds the site definition for imobiliare.ro: its
// category table and the goquery selectors that scrape listing pages.
package imobiliare

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// Domain is the site this package scrapes.
const Domain = "imobiliare.ro"

const sharedApartmentCursor = "page:" + Domain + ":inchirieri-apartamente"

// ErrNotListing is returned when none of the listing fields are on the page.
var ErrNotListing = errors.New("imobiliare: page is not a listing")

// BuildingTypeStudio is the building_type stored for studio listings. The
// spelling matches documents already in existing listing indices.
const BuildingTypeStudio = "garnosiera"

// Categories returns the default category table, in crawl order. Studios are
// listed under the apartment search and share its cursor.
func Categories() []crawler.Category {
	return []crawler.Category{
		{
			Name:         "inchirieri-apartamente",
			ListingURL:   "https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca?pagina={page}",
			CursorKey:    sharedApartmentCursor,
			ContractType: "rent",
			BuildingType: "apartment",
		},
		{
			Name:         "inchirieri-garsoniere",
			ListingURL:   "https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca?pagina={page}",
			CursorKey:    sharedApartmentCursor,
			ContractType: "rent",
			BuildingType: BuildingTypeStudio,
		},
	}
}

const (
	titleSelector           = "div.titlu h1"
	addressSelector         = "#content-detalii div.adresa"
	detailsSelector         = "#content-detalii span"
	descriptionSelector     = "#b_detalii_text p"
	extraSelector           = "#b_detalii_specificatii ul li"
	priceSelector           = "div.pret.first"
	currencySelector        = "#box-prezentare p"
	brokerSelector          = "#b-contact-dreapta a"
	characteristicsSelector = "#b_detalii_caracteristici li"
	locationScriptSelector  = "head script"
	resultLinkSelector      = `#container-lista-rezultate a[itemprop="name"]`
)

// Characteristic labels as they appear on the page.
const (
	labelPartitioning   = "Compartimentare:"
	labelRooms          = "Nr. camere:"
	labelKitchens       = "Nr. bucătării:"
	labelBuiltArea      = "Suprafaţă construită:"
	labelUsableArea     = "Suprafaţă utilă:"
	labelHeightCategory = "Regim înălţime:"
	labelBuiltYear      = "An construcţie:"
	labelFloor          = "Etaj:"
)

var (
	locationRe = regexp.MustCompile(`fOfertaLat':\s*'([^']*)',\s*'fOfertaLon':\s*'(\d+\.\d+)'`)
	listedAtRe = regexp.MustCompile(`\d+\.\d+\.\d+`)
)

// Extractor implements crawler.Extractor for imobiliare.ro.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractRecord scrapes the listing fields of page.
func (e *Extractor) ExtractRecord(page crawler.Page, _ crawler.Category) (crawler.RawRecord, error) {
	doc, err := parse(page)
	if err != nil {
		return crawler.RawRecord{}, err
	}

	raw := crawler.RawRecord{
		Title:       firstText(doc, titleSelector),
		Address:     ownText(doc.Find(addressSelector).First()),
		Description: joinTexts(doc.Find(descriptionSelector)),
		Extra:       joinTexts(doc.Find(extraSelector)),
		Price:       ownText(doc.Find(priceSelector).First()),
		Currency:    firstText(doc, currencySelector),
		Broker:      firstText(doc, brokerSelector),
		ListedAt:    listedAt(doc),
	}
	raw.Latitude, raw.Longitude = location(doc)

	traits := characteristics(doc)
	raw.Partitioning = traits[labelPartitioning]
	raw.Rooms = traits[labelRooms]
	raw.Kitchens = traits[labelKitchens]
	raw.BuiltArea = traits[labelBuiltArea]
	raw.UsableArea = traits[labelUsableArea]
	raw.HeightCategory = traits[labelHeightCategory]
	raw.BuiltYear = traits[labelBuiltYear]
	raw.Floor = traits[labelFloor]
	if raw == (crawler.RawRecord{}) {
		return crawler.RawRecord{}, fmt.Errorf("%w: %s", ErrNotListing, page.URL)
	}
	return raw, nil
}

// ExtractLinks returns the absolute listing URLs of a search results page.
func (e *Extractor) ExtractLinks(page crawler.Page) ([]string, error) {
	doc, err := parse(page)
	if err != nil {
		return nil, err
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find(resultLinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		abs, err := crawler.ResolveURL(page.URL, href)
		if err != nil {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links, nil
}

func parse(page crawler.Page) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func joinTexts(sel *goquery.Selection) string {
	parts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := ownText(s); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// ownText returns the text nodes directly under sel, skipping child elements.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func location(doc *goquery.Document) (string, string) {
	var lat, lon string
	doc.Find(locationScriptSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		script := s.Text()
		if !strings.Contains(script, "var aTexte") {
			return true
		}
		if m := locationRe.FindStringSubmatch(script); m != nil {
			lat, lon = m[1], m[2]
		}
		return false
	})
	return lat, lon
}

func listedAt(doc *goquery.Document) string {
	var raw string
	doc.Find(detailsSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := listedAtRe.FindString(s.Text()); m != "" {
			raw = m
			return false
		}
		return true
	})
	return raw
}

// characteristics maps each label of the characteristics list to the value
// held in its span.
func characteristics(doc *goquery.Document) map[string]string {
	out := make(map[string]string)
	doc.Find(characteristicsSelector).Each(func(_ int, s *goquery.Selection) {
		label := ownText(s)
		if label == "" {
			return
		}
		out[label] = strings.TrimSpace(s.Find("span").First().Text())
	})
	return out
}
