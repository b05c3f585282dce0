package sl

import (
	"slices"
	"strings"
	"time"
)

type Departure struct {
	Mode        string
	Line        string
	Destination string
	Direction   int
	DisplayTime string
	Scheduled   time.Time
	Expected    time.Time
}

func (d Departure) equal(o Departure) bool {
	return d.Mode == o.Mode && d.Line == o.Line && d.Destination == o.Destination &&
		d.Direction == o.Direction && d.DisplayTime == o.DisplayTime &&
		d.Scheduled.Equal(o.Scheduled) && d.Expected.Equal(o.Expected)
}

// When is the expected departure, or the timetabled one when no prediction exists.
func (d Departure) When() time.Time {
	if d.Expected.IsZero() {
		return d.Scheduled
	}
	return d.Expected
}

// Board is the filtered departure list of one departures thing.
type Board struct {
	ID         string
	SiteID     string
	Departures []Departure
	Deviations []string
}

func (b Board) DeviceID() string {
	return b.ID
}

func (b Board) Equal(o Board) bool {
	return b.ID == o.ID && b.SiteID == o.SiteID &&
		slices.EqualFunc(b.Departures, o.Departures, Departure.equal) &&
		slices.Equal(b.Deviations, o.Deviations)
}

// Query selects the departures a thing shows. Empty filters match everything.
type Query struct {
	SiteID     string
	TimeWindow int
	Modes      []string
	Lines      []string
	Direction  int
}

func (q Query) Matches(d Departure) bool {
	if len(q.Modes) > 0 && !slices.ContainsFunc(q.Modes, func(m string) bool { return strings.EqualFold(m, d.Mode) }) {
		return false
	}
	if len(q.Lines) > 0 && !slices.Contains(q.Lines, d.Line) {
		return false
	}
	if q.Direction != 0 && q.Direction != d.Direction {
		return false
	}
	return true
}

type departureJSON struct {
	TransportMode      string `json:"TransportMode"`
	LineNumber         string `json:"LineNumber"`
	Destination        string `json:"Destination"`
	JourneyDirection   int    `json:"JourneyDirection"`
	DisplayTime        string `json:"DisplayTime"`
	TimeTabledDateTime string `json:"TimeTabledDateTime"`
	ExpectedDateTime   string `json:"ExpectedDateTime"`
	Deviations         []struct {
		Text string `json:"Text"`
	} `json:"Deviations"`
}

type responseJSON struct {
	ResponseData struct {
		LatestUpdate        string          `json:"LatestUpdate"`
		Metros              []departureJSON `json:"Metros"`
		Buses               []departureJSON `json:"Buses"`
		Trains              []departureJSON `json:"Trains"`
		Trams               []departureJSON `json:"Trams"`
		Ships               []departureJSON `json:"Ships"`
		StopPointDeviations []struct {
			Deviation struct {
				Text string `json:"Text"`
			} `json:"Deviation"`
		} `json:"StopPointDeviations"`
	} `json:"ResponseData"`
}

func (r responseJSON) all() []departureJSON {
	data := r.ResponseData
	all := make([]departureJSON, 0, len(data.Metros)+len(data.Buses)+len(data.Trains)+len(data.Trams)+len(data.Ships))
	for _, group := range [][]departureJSON{data.Metros, data.Buses, data.Trains, data.Trams, data.Ships} {
		all = append(all, group...)
	}
	return all
}
