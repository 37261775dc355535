// Package briefing holds the event facts the assistant is primed with.
package briefing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fact is one named piece of event information. Only Text reaches the model;
// Name exists so configuration can override a fact in place.
type Fact struct {
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

// DefaultFacts returns the built-in briefing in preamble order.
func DefaultFacts() []Fact {
	return []Fact{
		{Name: "SYSTEM_PROMPT", Text: "You are an asssistant to guests of Marisa and Bill's wedding who always sticks to his personality" +
			"The following will guide you more DRESS_CODE, WEDDING_LOCATION, WEDDING_DATE, PERSONALITY, HOTEL_BLOCK, BUS_TO_WEDDING, BUS_FROM_WEDDING, THINGS_TO_DO, CITIES, KIDS, WEDDING_COLORS, GUEST_ARRIVAL_TIME, RSVP_DEADLINE, FOOD_MENU, OPEN_BAR, GIFT_REGISTRY. If information isn't provided in these variables then you may attempt to answer but be sure to have them verify the question to Bill & Marisa"},
		{Name: "DRESS_CODE", Text: "beachy cocktail attire"},
		{Name: "WEDDING_LOCATION", Text: "Ole Hanson Beach Club, San Clemente California"},
		{Name: "WEDDING_DATE", Text: "August 29th, 2026"},
		{Name: "PERSONALITY", Text: "An exagurated stariotypical Jon Travolta character"},
		{Name: "HOTEL_BLOCK", Text: "Marriott Irvine Spectrum Center"},
		{Name: "BUS_TO_WEDDING", Text: "Departs from Irvine Spectrum Center at 3pm"},
		{Name: "BUS_FROM_WEDDING", Text: "Departs from Ole Hanson Beach Club at 10pm heading to Irvine Spectrum Center"},
		{Name: "THINGS_TO_DO", Text: "Mention popular and fun activities in CITIES around the time of WEDDING_DATE"},
		{Name: "CITIES", Text: "Laguna Beach, San Clemente, Dana Point"},
		{Name: "KIDS", Text: "Kids are not allowed"},
		{Name: "WEDDING_COLORS", Text: "Green & Blue"},
		{Name: "GUEST_ARRIVAL_TIME", Text: "4:00pm"},
		{Name: "RSVP_DEADLINE", Text: "February 1st, 2026"},
		{Name: "FOOD_MENU", Text: "Chicken option, Steak option, Fish option"},
		{Name: "OPEN_BAR", Text: "Yes"},
		{Name: "GIFT_REGISTRY", Text: "Cash, A mansion, The empire state building, A trip to the moon"},
	}
}

type fileBriefing struct {
	Facts []Fact `yaml:"facts"`
}

// Load merges the facts in the YAML file at path over DefaultFacts. A fact
// whose name matches a default replaces its text and keeps its position;
// unknown names are appended in file order. An empty path returns the defaults.
func Load(path string) ([]Fact, error) {
	facts := DefaultFacts()
	if strings.TrimSpace(path) == "" {
		return facts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read briefing: %w", err)
	}
	var file fileBriefing
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse briefing: %w", err)
	}
	return Merge(facts, file.Facts)
}

// Merge applies overrides to base without mutating either slice.
func Merge(base, overrides []Fact) ([]Fact, error) {
	out := make([]Fact, len(base))
	copy(out, base)
	index := make(map[string]int, len(out))
	for i, f := range out {
		index[strings.ToUpper(f.Name)] = i
	}
	for _, f := range overrides {
		name := strings.ToUpper(strings.TrimSpace(f.Name))
		if name == "" {
			return nil, errors.New("briefing fact name is required")
		}
		if i, ok := index[name]; ok {
			out[i].Text = f.Text
			continue
		}
		index[name] = len(out)
		out = append(out, Fact{Name: name, Text: f.Text})
	}
	return out, nil
}

// Preamble renders the system turn for guestName: each fact's text separated
// by a blank line, then the current guest line.
func Preamble(facts []Fact, guestName string) string {
	parts := make([]string, 0, len(facts)+1)
	for _, f := range facts {
		parts = append(parts, f.Text)
	}
	parts = append(parts, "Current guest interacting: "+guestName)
	return strings.Join(parts, "\n\n")
}
