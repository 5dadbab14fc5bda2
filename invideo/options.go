package invideo

import (
	"context"
	"strings"
	"time"

	"shorts-pipeline/browser"
	"shorts-pipeline/config"
	"shorts-pipeline/failure"
	"shorts-pipeline/types"
)

// Option group outcomes
const (
	OutcomeAlreadySelected = "already-selected"
	OutcomePreferred       = "preferred"
	OutcomeRandomFallback  = "random-fallback"
	OutcomeNone            = "none"
)

// ProbeStatus is the typed result of reading back a group's selection
type ProbeStatus string

const (
	ProbeSelected       ProbeStatus = "Selected"
	ProbeDefaultAssumed ProbeStatus = "DefaultAssumed"
	ProbeNotFound       ProbeStatus = "NotFound"
)

// Observation is what the ranked probes saw
type Observation struct {
	Status ProbeStatus
	Label  string
	Probe  string
}

// selectOption picks the preferred option, else a uniform random visible one.
// It never fails the run: an empty group is logged and skipped.
func (g *Generator) selectOption(ctx context.Context, page browser.Page, grp config.OptionGroupConfig) types.Selection {
	s := types.Selection{Group: grp.Name, Outcome: OutcomeNone}
	log := g.log.With().Str("group", grp.Name).Logger()

	target := g.cfg.PreferredTarget(grp)
	found := target != "" && g.within(ctx, g.cfg.Timeouts.OptionLookup, func(ctx context.Context) error {
		return page.WaitClickable(ctx, target)
	}) == nil

	if found {
		class, _, _ := page.Attribute(ctx, target, "class")
		if grp.SelectedMarker != "" && strings.Contains(class, grp.SelectedMarker) {
			s.Outcome, s.Label = OutcomeAlreadySelected, grp.Preferred
			log.Info().Str("option", grp.Preferred).Msg("preferred option already selected")
		} else if err := g.within(ctx, g.cfg.Timeouts.Interaction, func(ctx context.Context) error {
			return page.Click(ctx, target)
		}); err != nil {
			log.Warn().Err(err).Str("option", grp.Preferred).Msg("preferred option would not click, trying fallback")
			found = false
		} else {
			s.Outcome, s.Label = OutcomePreferred, grp.Preferred
			log.Info().Str("option", grp.Preferred).Msg("✅ preferred option selected")
		}
	}

	if !found {
		log.Warn().Err(failure.OptionNotFound(grp.Name, grp.Preferred)).Msg("falling back to a random option")
		choices, err := page.Choices(ctx, grp.ChoicesXPath)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("could not list options")
		case len(choices) == 0:
			log.Error().Msg("group has no selectable options, continuing without a selection")
		default:
			c := choices[g.pick(len(choices))]
			if err := g.within(ctx, g.cfg.Timeouts.Interaction, func(ctx context.Context) error {
				return page.ClickChoice(ctx, grp.ChoicesXPath, c.Index)
			}); err != nil {
				log.Error().Err(err).Str("option", c.Label).Msg("fallback option would not click")
			} else {
				s.Outcome, s.Label = OutcomeRandomFallback, c.Label
				log.Info().Str("option", c.Label).Int("of", len(choices)).Msg("random option selected")
			}
		}
	}

	obs := g.introspect(ctx, page, grp, s.Label)
	s.Observed, s.ObservedLabel, s.ObservedBy = string(obs.Status), obs.Label, obs.Probe
	return s
}

// introspect tries the ranked probes in order. The first probe that matches
// wins; if none match the clicked label is assumed.
func (g *Generator) introspect(ctx context.Context, page browser.Page, grp config.OptionGroupConfig, clicked string) Observation {
	for _, p := range g.cfg.SelectedProbes {
		sel := strings.ReplaceAll(p.Selector, "{choices}", grp.ChoicesXPath)
		text, ok, err := page.Text(ctx, sel)
		if err != nil || !ok {
			continue
		}
		return Observation{Status: ProbeSelected, Label: text, Probe: p.Name}
	}
	if clicked != "" {
		return Observation{Status: ProbeDefaultAssumed, Label: clicked}
	}
	return Observation{Status: ProbeNotFound}
}

func (g *Generator) within(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
