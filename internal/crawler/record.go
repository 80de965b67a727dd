package crawler

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RawRecord holds listing fields exactly as scraped. Empty means "not found
// on page".
type RawRecord struct {
	Title          string
	Address        string
	Latitude       string
	Longitude      string
	Description    string
	Extra          string
	Price          string
	Currency       string
	Broker         string
	ListedAt       string
	Partitioning   string
	Rooms          string
	Kitchens       string
	BuiltArea      string
	UsableArea     string
	HeightCategory string
	BuiltYear      string
	Floor          string
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Record is the normalized listing document handed to a Sink.
type Record struct {
	URL            string     `json:"url"`
	Title          string     `json:"title,omitempty"`
	Address        string     `json:"address,omitempty"`
	Location       *GeoPoint  `json:"location,omitempty"`
	Category       string     `json:"category,omitempty"`
	ContractType   string     `json:"contract_type,omitempty"`
	BuildingType   string     `json:"building_type,omitempty"`
	Description    string     `json:"description,omitempty"`
	Extra          string     `json:"extra,omitempty"`
	Price          *int       `json:"price,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	Broker         string     `json:"broker,omitempty"`
	ListedAt       *time.Time `json:"listed_at,omitempty"`
	Partitioning   string     `json:"partitioning,omitempty"`
	Rooms          *int       `json:"rooms,omitempty"`
	Kitchens       *int       `json:"kitchens,omitempty"`
	BuiltArea      *int       `json:"built_area,omitempty"`
	UsableArea     *int       `json:"usable_area,omitempty"`
	HeightCategory string     `json:"height_category,omitempty"`
	BuiltYear      *int       `json:"built_year,omitempty"`
	Floor          string     `json:"floor,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

var (
	digitsRe = regexp.MustCompile(`\d+`)
	floorRe  = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)
	dateRe   = regexp.MustCompile(`(\d{1,2})\D(\d{1,2})\D(\d{4})`)
)

// BuildRecord normalizes raw fields and merges the category metadata.
func BuildRecord(url string, raw RawRecord, category Category) Record {
	return Record{
		URL:            url,
		Title:          clean(raw.Title),
		Address:        clean(raw.Address),
		Location:       ParseGeoPoint(raw.Latitude, raw.Longitude),
		Category:       category.Name,
		ContractType:   category.ContractType,
		BuildingType:   category.BuildingType,
		Description:    clean(raw.Description),
		Extra:          clean(raw.Extra),
		Price:          ParsePrice(raw.Price),
		Currency:       clean(raw.Currency),
		Broker:         clean(raw.Broker),
		ListedAt:       ParseDate(raw.ListedAt),
		Partitioning:   clean(raw.Partitioning),
		Rooms:          ParseInt(raw.Rooms),
		Kitchens:       ParseInt(raw.Kitchens),
		BuiltArea:      FirstInt(raw.BuiltArea),
		UsableArea:     FirstInt(raw.UsableArea),
		HeightCategory: clean(raw.HeightCategory),
		BuiltYear:      FirstInt(raw.BuiltYear),
		Floor:          ParseFloor(raw.Floor),
	}
}

// ParsePrice strips thousands separators ("1.200" -> 1200). Decimal parts
// written with a comma are dropped.
func ParsePrice(raw string) *int {
	s := clean(raw)
	if s == "" {
		return nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	s = strings.NewReplacer(".", "", " ", "", "\u00a0", "").Replace(s)
	return FirstInt(s)
}

// ParseInt parses a whole field as an integer.
func ParseInt(raw string) *int {
	n, err := strconv.Atoi(clean(raw))
	if err != nil {
		return nil
	}
	return &n
}

// FirstInt returns the first run of digits in raw ("54 mp" -> 54).
func FirstInt(raw string) *int {
	m := digitsRe.FindString(raw)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// ParseFloor extracts a "N / M" floor descriptor.
func ParseFloor(raw string) string {
	m := floorRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1] + " / " + m[2]
}

// ParseDate finds a day.month.year date in raw.
func ParseDate(raw string) *time.Time {
	m := dateRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	t, err := time.Parse("2.1.2006", m[1]+"."+m[2]+"."+m[3])
	if err != nil {
		return nil
	}
	return &t
}

// ParseGeoPoint returns nil unless both coordinates parse.
func ParseGeoPoint(lat, lon string) *GeoPoint {
	la, err := strconv.ParseFloat(clean(lat), 64)
	if err != nil {
		return nil
	}
	lo, err := strconv.ParseFloat(clean(lon), 64)
	if err != nil {
		return nil
	}
	return &GeoPoint{Lat: la, Lon: lo}
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
