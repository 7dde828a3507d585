package fortune

import (
	"encoding/json"
	"strings"
)

type Rarity int

const (
	Common Rarity = iota
	Rare
	Legendary
)

var rarityNames = map[Rarity]string{
	Common:    "Common",
	Rare:      "Rare",
	Legendary: "Legendary",
}

var rarityFromName = map[string]Rarity{
	"common":    Common,
	"rare":      Rare,
	"legendary": Legendary,
}

// Rarities lists every tier in roll order.
var Rarities = []Rarity{Common, Rare, Legendary}

func (r Rarity) String() string {
	if s, ok := rarityNames[r]; ok {
		return s
	}
	return "Unknown"
}

func (r Rarity) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rarity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = ParseRarity(s)
	return nil
}

// ParseRarity matches a tier name case-insensitively. Unknown names fall back
// to Common.
func ParseRarity(s string) Rarity {
	if r, ok := rarityFromName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r
	}
	return Common
}

// LookupRarity is ParseRarity without the fallback.
func LookupRarity(s string) (Rarity, bool) {
	r, ok := rarityFromName[strings.ToLower(strings.TrimSpace(s))]
	return r, ok
}

const (
	DefaultCategory = "General"
	fieldSeparator  = "|"
)

// Fortune is a single catalog record. Values are never mutated after creation.
type Fortune struct {
	Category string `json:"category"`
	Rarity   Rarity `json:"rarity"`
	Text     string `json:"text"`
}

// Default is injected into a catalog whose seed produced no records.
var Default = Fortune{Category: DefaultCategory, Rarity: Common, Text: "Better luck next time!"}

// ParseRecord splits a "category|rarity|text" line. ok is false unless the
// line has exactly three fields.
func ParseRecord(line string) (Fortune, bool) {
	parts := strings.Split(line, fieldSeparator)
	if len(parts) != 3 {
		return Fortune{}, false
	}
	return Fortune{
		Category: strings.TrimSpace(parts[0]),
		Rarity:   ParseRarity(parts[1]),
		Text:     strings.TrimSpace(parts[2]),
	}, true
}

// ParseLine is ParseRecord with the upload fallback: anything that is not a
// three-field record becomes a General/Common fortune carrying the whole line.
func ParseLine(line string) Fortune {
	if f, ok := ParseRecord(line); ok {
		return f
	}
	return Fortune{Category: DefaultCategory, Rarity: Common, Text: strings.TrimSpace(line)}
}

// Record renders f back into the pipe-delimited form.
func (f Fortune) Record() string {
	return f.Category + fieldSeparator + f.Rarity.String() + fieldSeparator + f.Text
}

// MatchesCategory reports a case-insensitive exact category match.
func (f Fortune) MatchesCategory(category string) bool {
	return strings.EqualFold(f.Category, category)
}

var categoryIcons = map[string]string{
	"motivational": "💪",
	"success":      "🏆",
	"social":       "🤝",
	"wise":         "🦉",
	"future":       "🔮",
}

const defaultIcon = "🌟"

// Icon returns the display icon for a category.
func Icon(category string) string {
	if icon, ok := categoryIcons[strings.ToLower(category)]; ok {
		return icon
	}
	return defaultIcon
}
