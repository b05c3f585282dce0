package recycling

import (
	"slices"
	"strings"
	"time"
)

type Fraction string

const (
	FractionFood     Fraction = "food"
	FractionResidual Fraction = "residual"
	FractionPaper    Fraction = "paper"
	FractionPlastic  Fraction = "plastic"
	FractionGlass    Fraction = "glass"
	FractionMetal    Fraction = "metal"
	FractionOther    Fraction = "other"
)

// fractionWords maps words seen in provider tables to a fraction. The first
// word contained in the name wins.
var fractionWords = []struct {
	word     string
	fraction Fraction
}{
	{"food", FractionFood},
	{"mat", FractionFood},
	{"bio", FractionFood},
	{"residual", FractionResidual},
	{"rest", FractionResidual},
	{"paper", FractionPaper},
	{"papper", FractionPaper},
	{"tidning", FractionPaper},
	{"plast", FractionPlastic},
	{"plastic", FractionPlastic},
	{"glas", FractionGlass},
	{"metal", FractionMetal},
	{"metall", FractionMetal},
}

func ParseFraction(name string) Fraction {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, w := range fractionWords {
		if strings.Contains(lower, w.word) {
			return w.fraction
		}
	}
	return FractionOther
}

type Pickup struct {
	Name     string
	Fraction Fraction
	Date     time.Time
}

func (p Pickup) equal(o Pickup) bool {
	return p.Name == o.Name && p.Fraction == o.Fraction && p.Date.Equal(o.Date)
}

// Schedule is the upcoming pickups of one address, soonest first.
type Schedule struct {
	ID      string
	Address string
	Pickups []Pickup
}

func (s Schedule) DeviceID() string {
	return s.ID
}

func (s Schedule) Equal(o Schedule) bool {
	return s.ID == o.ID && s.Address == o.Address && slices.EqualFunc(s.Pickups, o.Pickups, Pickup.equal)
}

// Next is the first pickup of a fraction.
func (s Schedule) Next(f Fraction) (Pickup, bool) {
	for _, p := range s.Pickups {
		if p.Fraction == f {
			return p, true
		}
	}
	return Pickup{}, false
}
