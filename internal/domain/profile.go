package domain

import "time"

// ProfileSummary is the JSON document written next to the profile index.
type ProfileSummary struct {
	GeneratedAt time.Time     `json:"generated_at"`
	ItemCount   int           `json:"item_count"`
	Model       string        `json:"model"`
	Centroid    []float32     `json:"centroid"`
	TopAuthors  []AuthorCount `json:"top_authors"`
	TopVenues   []VenueCount  `json:"top_venues"`
}

// AuthorCount is one row of the author frequency table.
type AuthorCount struct {
	Author string `json:"author"`
	Count  int    `json:"count"`
}

// VenueCount is one row of the venue frequency table.
type VenueCount struct {
	Venue string `json:"venue"`
	Count int    `json:"count"`
}

// VenueNames lists the venues of the summary in frequency order.
func (s ProfileSummary) VenueNames() []string {
	names := make([]string, 0, len(s.TopVenues))
	for _, v := range s.TopVenues {
		if v.Venue != "" {
			names = append(names, v.Venue)
		}
	}
	return names
}
