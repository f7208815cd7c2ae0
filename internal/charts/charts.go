// Package charts maps backend aggregate rows onto the series shapes the
// dashboard draws. The backend does all aggregation; nothing here filters,
// sorts or sums.
package charts

// Kind identifies one of the chart types.
type Kind int

const (
	KindNone Kind = iota
	KindBar
	KindPie
	KindScatter
)

func (k Kind) String() string {
	switch k {
	case KindBar:
		return "bar"
	case KindPie:
		return "pie"
	case KindScatter:
		return "scatter"
	default:
		return "none"
	}
}

// Series is a prepared payload for one chart kind.
type Series interface {
	Kind() Kind
	Title() string
	Len() int
}

const (
	BarTitle     = "Revenue > 10k"
	PieTitle     = "Companies by Country"
	ScatterTitle = "Profit vs Employees"
)

// PiePalette is cycled over the slices.
var PiePalette = []string{"#FF6384", "#36A2EB", "#FFCE56", "#4BC0C0", "#9966FF"}

// RevenueRow is one element of GET /api/charts/revenue/.
type RevenueRow struct {
	Name    string  `json:"name"`
	Revenue float64 `json:"revenue"`
}

// CountryRow is one element of GET /api/charts/country/.
type CountryRow struct {
	Country string  `json:"country"`
	Count   float64 `json:"count"`
}

// DynamicRow is one element of GET /api/charts/dynamic/.
type DynamicRow struct {
	Employees float64 `json:"employees"`
	Profit    float64 `json:"profit"`
}

type BarSeries struct {
	Label  string
	Labels []string
	Data   []float64
}

func (BarSeries) Kind() Kind        { return KindBar }
func (s BarSeries) Title() string { return s.Label }
func (s BarSeries) Len() int      { return len(s.Data) }

type PieSeries struct {
	Label  string
	Labels []string
	Data   []float64
	Colors []string
}

func (PieSeries) Kind() Kind        { return KindPie }
func (s PieSeries) Title() string { return s.Label }
func (s PieSeries) Len() int      { return len(s.Data) }

// Total is the sum of all slices.
func (s PieSeries) Total() float64 {
	var t float64
	for _, v := range s.Data {
		t += v
	}
	return t
}

type Point struct {
	X float64
	Y float64
}

type ScatterSeries struct {
	Label  string
	Points []Point
}

func (ScatterSeries) Kind() Kind        { return KindScatter }
func (s ScatterSeries) Title() string { return s.Label }
func (s ScatterSeries) Len() int      { return len(s.Points) }

// Bar labels each bar with the company name and sizes it by revenue.
func Bar(rows []RevenueRow) BarSeries {
	s := BarSeries{
		Label:  BarTitle,
		Labels: make([]string, len(rows)),
		Data:   make([]float64, len(rows)),
	}
	for i, r := range rows {
		s.Labels[i] = r.Name
		s.Data[i] = r.Revenue
	}
	return s
}

// Pie has one slice per country.
func Pie(rows []CountryRow) PieSeries {
	s := PieSeries{
		Label:  PieTitle,
		Labels: make([]string, len(rows)),
		Data:   make([]float64, len(rows)),
		Colors: make([]string, len(rows)),
	}
	for i, r := range rows {
		s.Labels[i] = r.Country
		s.Data[i] = r.Count
		s.Colors[i] = PiePalette[i%len(PiePalette)]
	}
	return s
}

// Scatter plots profit (y) against employee count (x).
func Scatter(rows []DynamicRow) ScatterSeries {
	s := ScatterSeries{
		Label:  ScatterTitle,
		Points: make([]Point, len(rows)),
	}
	for i, r := range rows {
		s.Points[i] = Point{X: r.Employees, Y: r.Profit}
	}
	return s
}
