package charts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBar(t *testing.T) {
	s := Bar([]RevenueRow{{Name: "A", Revenue: 5}, {Name: "B", Revenue: 12}})
	assert.Equal(t, []string{"A", "B"}, s.Labels)
	assert.Equal(t, []float64{5, 12}, s.Data)
	assert.Equal(t, KindBar, s.Kind())
	assert.Equal(t, BarTitle, s.Title())
}

func TestPie(t *testing.T) {
	s := Pie([]CountryRow{{Country: "US", Count: 3}})
	assert.Equal(t, []string{"US"}, s.Labels)
	assert.Equal(t, []float64{3}, s.Data)
	assert.Equal(t, []string{PiePalette[0]}, s.Colors)
	assert.Equal(t, float64(3), s.Total())
}

func TestPiePaletteCycles(t *testing.T) {
	rows := make([]CountryRow, len(PiePalette)+2)
	s := Pie(rows)
	assert.Equal(t, PiePalette[0], s.Colors[len(PiePalette)])
	assert.Equal(t, PiePalette[1], s.Colors[len(PiePalette)+1])
}

func TestScatter(t *testing.T) {
	s := Scatter([]DynamicRow{{Employees: 10, Profit: 100}})
	assert.Equal(t, []Point{{X: 10, Y: 100}}, s.Points)
	assert.Equal(t, 1, s.Len())
}

func TestProjectionsDoNotReorder(t *testing.T) {
	s := Bar([]RevenueRow{{Name: "Z", Revenue: 1}, {Name: "A", Revenue: 99}, {Name: "Z", Revenue: 1}})
	assert.Equal(t, []string{"Z", "A", "Z"}, s.Labels)
	assert.Equal(t, []float64{1, 99, 1}, s.Data)
}

func TestEmptyInput(t *testing.T) {
	assert.Equal(t, 0, Bar(nil).Len())
	assert.Equal(t, 0, Pie(nil).Len())
	assert.Equal(t, 0, Scatter(nil).Len())
	assert.Equal(t, "none", KindNone.String())
}
