package imobiliare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/donkey-crawler/internal/category"
	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

const listingHTML = `<html>
<head>
<script>var other = 1;</script>
<script>
var aTexte = {};
var oOferta = {'fOfertaLat': '46.770439', 'fOfertaLon': '23.591423', 'sZona': 'Centru'};
</script>
</head>
<body>
<div class="titlu"><h1> Apartament 2 camere  Centru </h1></div>
<div id="content-detalii">
  <div class="adresa">Cluj-Napoca, zona Centru <span>harta</span></div>
  <div><span>Actualizat: 14.03.2018</span></div>
</div>
<div id="box-prezentare"><p>EUR</p><p>lunar</p></div>
<div class="pret first">1.200 <span>EUR</span></div>
<div id="b-contact-dreapta"><div><a href="/agentie">Agentia Imobiliara</a></div></div>
<div id="b_detalii_text"><p>Apartament luminos,</p><p>mobilat complet.</p></div>
<div id="b_detalii_specificatii"><ul><li>centrala proprie</li><li>parcare</li></ul></div>
<div id="b_detalii_caracteristici"><div><ul>
  <li>Nr. camere:<span>2</span></li>
  <li>Nr. bucătării:<span>1</span></li>
  <li>Compartimentare:<span>decomandat</span></li>
  <li>Suprafaţă utilă:<span>54 mp</span></li>
  <li>Suprafaţă construită:<span>60,5 mp</span></li>
  <li>Regim înălţime:<span>P+4E</span></li>
  <li>An construcţie:<span>1985</span></li>
  <li>Etaj:<span>Etaj 3 / 4</span></li>
</ul></div></div>
</body>
</html>`

const resultsHTML = `<html><body>
<div id="container-lista-rezultate">
  <h2><a itemprop="name" href="/inchirieri-apartamente/cluj-napoca/centru/apartament-1">One</a></h2>
  <h2><a itemprop="name" href="https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca/gheorgheni/apartament-2#poze">Two</a></h2>
  <h2><a itemprop="name" href="/inchirieri-apartamente/cluj-napoca/centru/apartament-1">Dup</a></h2>
  <a href="/not-a-result">Ad</a>
  <a itemprop="name">No href</a>
</div>
<a itemprop="name" href="/outside">Outside</a>
</body></html>`

func TestExtractRecord(t *testing.T) {
	t.Parallel()

	page := crawler.Page{URL: "https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca/x", Body: []byte(listingHTML)}
	raw, err := New().ExtractRecord(page, Categories()[0])
	require.NoError(t, err)

	assert.Equal(t, "Apartament 2 camere  Centru", raw.Title)
	assert.Equal(t, "Cluj-Napoca, zona Centru", raw.Address)
	assert.Equal(t, "46.770439", raw.Latitude)
	assert.Equal(t, "23.591423", raw.Longitude)
	assert.Equal(t, "Apartament luminos, mobilat complet.", raw.Description)
	assert.Equal(t, "centrala proprie parcare", raw.Extra)
	assert.Equal(t, "1.200", raw.Price)
	assert.Equal(t, "EUR", raw.Currency)
	assert.Equal(t, "Agentia Imobiliara", raw.Broker)
	assert.Equal(t, "14.03.2018", raw.ListedAt)
	assert.Equal(t, "2", raw.Rooms)
	assert.Equal(t, "1", raw.Kitchens)
	assert.Equal(t, "decomandat", raw.Partitioning)
	assert.Equal(t, "54 mp", raw.UsableArea)
	assert.Equal(t, "60,5 mp", raw.BuiltArea)
	assert.Equal(t, "P+4E", raw.HeightCategory)
	assert.Equal(t, "1985", raw.BuiltYear)
	assert.Equal(t, "Etaj 3 / 4", raw.Floor)
}

func TestExtractRecordNormalizes(t *testing.T) {
	t.Parallel()

	cat := Categories()[1]
	page := crawler.Page{URL: "https://www.imobiliare.ro/inchirieri-garsoniere/cluj-napoca/y", Body: []byte(listingHTML)}
	raw, err := New().ExtractRecord(page, cat)
	require.NoError(t, err)

	rec := crawler.BuildRecord(page.URL, raw, cat)
	require.NotNil(t, rec.Price)
	assert.Equal(t, 1200, *rec.Price)
	require.NotNil(t, rec.Location)
	assert.InDelta(t, 46.770439, rec.Location.Lat, 1e-9)
	assert.Equal(t, "3 / 4", rec.Floor)
	require.NotNil(t, rec.BuiltArea)
	assert.Equal(t, 60, *rec.BuiltArea)
	require.NotNil(t, rec.ListedAt)
	assert.Equal(t, 2018, rec.ListedAt.Year())
	assert.Equal(t, "garnosiera", rec.BuildingType)
	assert.Equal(t, "rent", rec.ContractType)
}

func TestExtractRecordMissingFields(t *testing.T) {
	t.Parallel()

	page := crawler.Page{Body: []byte(`<html><body><div class="titlu"><h1>Garsoniera</h1></div></body></html>`)}
	raw, err := New().ExtractRecord(page, Categories()[0])
	require.NoError(t, err)
	assert.Equal(t, "Garsoniera", raw.Title)
	assert.Empty(t, raw.Price)
	assert.Empty(t, raw.Latitude)
	assert.Empty(t, raw.Rooms)
	assert.Empty(t, raw.ListedAt)
}

func TestExtractRecordWithoutTitle(t *testing.T) {
	t.Parallel()

	body := `<html><body>
<div class="pret first">1.200 <span>EUR</span></div>
<div id="b_detalii_text"><p>Apartament luminos, aproape de centru.</p></div>
</body></html>`
	page := crawler.Page{URL: "https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca/y", Body: []byte(body)}
	raw, err := New().ExtractRecord(page, Categories()[0])
	require.NoError(t, err)
	assert.Empty(t, raw.Title)
	assert.Equal(t, "1.200", raw.Price)
	assert.Equal(t, "Apartament luminos, aproape de centru.", raw.Description)
}

func TestExtractRecordNothingOnPage(t *testing.T) {
	t.Parallel()

	page := crawler.Page{URL: "https://www.imobiliare.ro/", Body: []byte(resultsHTML)}
	_, err := New().ExtractRecord(page, Categories()[0])
	require.ErrorIs(t, err, ErrNotListing)
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	page := crawler.Page{
		URL:  "https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca?pagina=2",
		Body: []byte(resultsHTML),
	}
	links, err := New().ExtractLinks(page)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca/centru/apartament-1",
		"https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca/gheorgheni/apartament-2",
	}, links)
}

func TestExtractLinksEmptyPage(t *testing.T) {
	t.Parallel()

	links, err := New().ExtractLinks(crawler.Page{URL: "https://www.imobiliare.ro/x", Body: []byte("<html></html>")})
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestCategoriesFormValidTable(t *testing.T) {
	t.Parallel()

	table, err := category.New(Categories())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	first, _ := table.At(0)
	second, _ := table.At(1)
	assert.Equal(t, crawler.CursorKey(Domain, first), crawler.CursorKey(Domain, second))
	assert.Equal(t, "https://www.imobiliare.ro/inchirieri-apartamente/cluj-napoca?pagina=3", first.ListingPage(3))
}
