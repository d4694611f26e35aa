package wage

import "slices"

// Snapshot is the wage configuration in force when a run starts. It is
// loaded once and passed explicitly; nothing in it is modified afterwards.
type Snapshot struct {
	Version  string                            `json:"version"`
	Rules    []SupplementRule                  `json:"rules"`
	Holidays HolidayCalendar                   `json:"holidays"`
	Overtime OvertimePolicy                    `json:"overtime"`
	Ladders  map[string]Ladder                 `json:"ladders"`
	Pricing  map[string]map[string]PricingRule `json:"pricing"`
}

func (s Snapshot) Ladder(id string) (Ladder, bool) {
	ladder, ok := s.Ladders[id]
	return ladder, ok
}

// AutoRules returns the rules this engine evaluates; manual-only rules are
// entered as separate lines upstream.
func (s Snapshot) AutoRules() []SupplementRule {
	out := make([]SupplementRule, 0, len(s.Rules))
	for _, rule := range s.Rules {
		if rule.AutoCalculated {
			out = append(out, rule)
		}
	}
	return out
}

func (s Snapshot) PricingFor(system string) map[string]PricingRule {
	return s.Pricing[system]
}

// Categories lists the distinct auto-calculated categories in sorted order.
func (s Snapshot) Categories() []string {
	var out []string
	for _, rule := range s.AutoRules() {
		if !slices.Contains(out, rule.Category) {
			out = append(out, rule.Category)
		}
	}
	slices.Sort(out)
	return out
}
