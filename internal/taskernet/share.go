package taskernet

import (
	"strconv"
	"strings"
)

// Share is one Taskernet share as returned by the datashare API. Only the
// fields the bot renders are decoded.
type Share struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Date        *int64   `json:"date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Description *string  `json:"description,omitempty"`
	Stats       *Stats   `json:"stats,omitempty"`

	// Some responses carry the counters at the top level instead of under stats.
	Views     *int64 `json:"views,omitempty"`
	Downloads *int64 `json:"downloads,omitempty"`
}

type Stats struct {
	Views     *int64 `json:"views,omitempty"`
	Downloads *int64 `json:"downloads,omitempty"`
}

// Counts returns the view and download counters. Both are nil unless the
// record carries both of them in the same place, stats taking precedence.
func (s Share) Counts() (views, downloads *int64) {
	if s.Stats != nil {
		if s.Stats.Views != nil && s.Stats.Downloads != nil {
			return s.Stats.Views, s.Stats.Downloads
		}
		return nil, nil
	}
	if s.Views != nil && s.Downloads != nil {
		return s.Views, s.Downloads
	}
	return nil, nil
}

// StatsLine renders "Views: v | Downloads: d"; missing counters print as n/a.
func (s Share) StatsLine() string {
	views, downloads := s.Counts()
	return "Views: " + formatCount(views) + " | Downloads: " + formatCount(downloads)
}

// HashTags renders tags as space separated #tag tokens.
func (s Share) HashTags() string {
	if len(s.Tags) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.Tags))
	for _, tag := range s.Tags {
		parts = append(parts, "#"+tag)
	}
	return strings.Join(parts, " ")
}

func formatCount(v *int64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatInt(*v, 10)
}

type searchResponse struct {
	Shares []Share `json:"shares"`
}

type detailResponse struct {
	Info *Share `json:"info"`
}
