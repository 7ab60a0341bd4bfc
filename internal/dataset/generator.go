package dataset

import (
	"math/rand"
)

type model struct {
	name      string
	basePrice int64
}

var models = []model{
	{"Maruti Wagon R LXI Minor", 350000},
	{"Maruti Swift Dzire VDI", 650000},
	{"Maruti Alto 800 LXI", 280000},
	{"Hyundai i20 Asta 1.2", 700000},
	{"Hyundai Verna 1.6 SX", 900000},
	{"Honda City 1.5 V MT", 950000},
	{"Honda Amaze VX i-DTEC", 720000},
	{"Tata Indica Vista Quadrajet LS", 380000},
	{"Tata Nexon XZ Plus", 1000000},
	{"Mahindra XUV500 W8 2WD", 1400000},
	{"Mahindra Scorpio S11", 1300000},
	{"Toyota Innova 2.5 G", 1500000},
	{"Toyota Corolla Altis 1.8 G", 1600000},
	{"Renault KWID RXT", 380000},
	{"Ford EcoSport 1.5 Diesel Titanium", 950000},
	{"Volkswagen Polo 1.2 MPI Highline", 650000},
}

// Generator produces deterministic synthetic listings for a seed.
type Generator struct {
	rnd      *rand.Rand
	sequence int64
	// CurrentYear bounds model years; listings are at most 20 years old.
	CurrentYear int64
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed)), CurrentYear: 2020}
}

func (g *Generator) Next() Listing {
	index := g.sequence
	g.sequence++

	m := models[g.rnd.Intn(len(models))]
	age := int64(g.rnd.Intn(20))
	year := g.CurrentYear - age
	kmDriven := age*int64(6000+g.rnd.Intn(9000)) + int64(g.rnd.Intn(5000))

	return Listing{
		Index:        index,
		Name:         m.name,
		Year:         year,
		SellingPrice: g.price(m.basePrice, age),
		KmDriven:     kmDriven,
		Fuel:         g.pickFuel(),
		SellerType:   g.pickSellerType(),
		Transmission: g.pickTransmission(),
		Owner:        ownerForAge(age, g.rnd),
	}
}

func (g *Generator) Generate(n int) []Listing {
	out := make([]Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Next())
	}
	return out
}

// price depreciates roughly 9% a year with +-15% noise, rounded to the
// nearest thousand rupees.
func (g *Generator) price(base int64, age int64) int64 {
	value := float64(base)
	for i := int64(0); i < age; i++ {
		value *= 0.91
	}
	value *= 0.85 + g.rnd.Float64()*0.30
	rounded := int64(value/1000) * 1000
	if rounded < 20000 {
		rounded = 20000
	}
	return rounded
}

func (g *Generator) pickFuel() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 49:
		return "Diesel"
	case p < 97:
		return "Petrol"
	case p < 99:
		return "CNG"
	default:
		return "LPG"
	}
}

func (g *Generator) pickSellerType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 75:
		return "Individual"
	case p < 98:
		return "Dealer"
	default:
		return "Trustmark Dealer"
	}
}

func (g *Generator) pickTransmission() string {
	if g.rnd.Intn(100) < 90 {
		return "Manual"
	}
	return "Automatic"
}

func ownerForAge(age int64, r *rand.Rand) string {
	owners := []string{"First Owner", "Second Owner", "Third Owner", "Fourth & Above Owner"}
	limit := 1 + int(age/5)
	if limit > len(owners) {
		limit = len(owners)
	}
	if r.Intn(100) < 2 {
		return "Test Drive Car"
	}
	return owners[r.Intn(limit)]
}
