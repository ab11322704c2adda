package models

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ListSelectors are CSS selectors applied to a venue's event list page
type ListSelectors struct {
	EventContainer string `json:"event_container" yaml:"event_container"`
	Title          string `json:"title" yaml:"title"`
	Date           string `json:"date,omitempty" yaml:"date,omitempty"`
	Time           string `json:"time,omitempty" yaml:"time,omitempty"`
	Image          string `json:"image,omitempty" yaml:"image,omitempty"`
	Link           string `json:"link,omitempty" yaml:"link,omitempty"`
	Price          string `json:"price,omitempty" yaml:"price,omitempty"`
}

// DetailSelectors are CSS selectors applied to an event's detail page
type DetailSelectors struct {
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	TicketLink  string `json:"ticket_link,omitempty" yaml:"ticket_link,omitempty"`
	Price       string `json:"price,omitempty" yaml:"price,omitempty"`
	Image       string `json:"image,omitempty" yaml:"image,omitempty"`
	Time        string `json:"time,omitempty" yaml:"time,omitempty"`
}

// VenueConfig describes how to scrape one venue website
type VenueConfig struct {
	Key         string `json:"key" yaml:"-"` // map key in the config file
	Name        string `json:"venue_name" yaml:"venue_name"`
	Address     string `json:"venue_address" yaml:"venue_address"`
	BaseURL     string `json:"base_url" yaml:"base_url"`
	EventsURL   string `json:"events_url" yaml:"events_url"`
	Category    string `json:"category" yaml:"category"`
	Subcategory string `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	City        string `json:"city,omitempty" yaml:"city,omitempty"`

	ListSelectors   ListSelectors   `json:"list_selectors" yaml:"list_selectors"`
	DetailSelectors DetailSelectors `json:"detail_selectors,omitempty" yaml:"detail_selectors,omitempty"`

	DateInTitle      bool   `json:"date_in_title,omitempty" yaml:"date_in_title,omitempty"`
	UseDetailPages   bool   `json:"use_detail_pages,omitempty" yaml:"use_detail_pages,omitempty"`
	RenderWithReader bool   `json:"render_with_reader,omitempty" yaml:"render_with_reader,omitempty"`
	FallbackImageURL string `json:"fallback_image_url,omitempty" yaml:"fallback_image_url,omitempty"`
	Enabled          *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled reports whether the venue should be scraped; unset means enabled
func (vc *VenueConfig) IsEnabled() bool {
	return vc.Enabled == nil || *vc.Enabled
}

// Validate checks the fields required to scrape a venue
func (vc *VenueConfig) Validate() error {
	if vc.Name == "" {
		return fmt.Errorf("venue_name is required")
	}
	if !IsValidURL(vc.EventsURL) {
		return fmt.Errorf("events_url must be an http(s) URL")
	}
	if vc.BaseURL != "" && !IsValidURL(vc.BaseURL) {
		return fmt.Errorf("base_url must be an http(s) URL")
	}
	if vc.RenderWithReader {
		return nil
	}
	if vc.ListSelectors.EventContainer == "" {
		return fmt.Errorf("list_selectors.event_container is required")
	}
	if vc.ListSelectors.Title == "" {
		return fmt.Errorf("list_selectors.title is required")
	}
	return nil
}

// ParseVenueConfigs decodes a YAML document mapping venue keys to configs.
// The result is sorted by key.
func ParseVenueConfigs(data []byte) ([]VenueConfig, error) {
	var raw map[string]VenueConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode venue configs: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	configs := make([]VenueConfig, 0, len(keys))
	for _, k := range keys {
		vc := raw[k]
		vc.Key = k
		if err := vc.Validate(); err != nil {
			return nil, fmt.Errorf("venue %q: %w", k, err)
		}
		configs = append(configs, vc)
	}
	return configs, nil
}

// LoadVenueConfigs reads and decodes a venue config file
func LoadVenueConfigs(path string) ([]VenueConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read venue configs: %w", err)
	}
	return ParseVenueConfigs(data)
}

// FindVenue returns the config with the given key
func FindVenue(configs []VenueConfig, key string) (VenueConfig, bool) {
	for _, vc := range configs {
		if vc.Key == key {
			return vc, true
		}
	}
	return VenueConfig{}, false
}
