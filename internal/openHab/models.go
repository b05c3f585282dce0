package openHab

// EnrichedItemDTO is the item representation returned by rest/items.
type EnrichedItemDTO struct {
	Type       string   `json:"type"`
	Name       string   `json:"name"`
	Label      string   `json:"label"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	GroupNames []string `json:"groupNames"`
	Link       string   `json:"link"`
	State      string   `json:"state"`
}
