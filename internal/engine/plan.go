package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// PlanInput carries the user-supplied fields the plan templates fill in.
type PlanInput struct {
	Prompt      string   `json:"prompt,omitempty"`
	Goals       []string `json:"goals,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Sectors     []string `json:"sectors,omitempty"`
	Region      string   `json:"region,omitempty"`
	Horizon     string   `json:"horizon,omitempty"`
}

// Actor describes one helix participant.
type Actor struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Incentives   []string `json:"incentives"`
	Constraints  []string `json:"constraints"`
}

// Initiative is one templated joint initiative.
type Initiative struct {
	Title          string              `json:"title"`
	Problem        string              `json:"problem"`
	Approach       string              `json:"approach"`
	Roles          map[string][]string `json:"roles"`
	Milestones90d  []string            `json:"milestones_90d"`
	SuccessMetrics []string            `json:"success_metrics"`
	Risks          []string            `json:"risks"`
	Mitigations    []string            `json:"mitigations"`
}

// PlanMeta records when and for what scope a plan was generated.
type PlanMeta struct {
	GeneratedAt time.Time `json:"generated_at"`
	Horizon     string    `json:"horizon"`
	Region      string    `json:"region,omitempty"`
}

// Plan is the structured output plus a rendered markdown summary.
type Plan struct {
	Meta        PlanMeta         `json:"meta"`
	FocusAreas  []string         `json:"focus_areas"`
	Actors      map[string]Actor `json:"actors"`
	Initiatives []Initiative     `json:"initiatives"`
	Markdown    string           `json:"markdown"`
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// deriveFocusAreas picks up to four focus areas from sectors, then goals,
// then a rough split of the free-form prompt, with fixed defaults last.
func deriveFocusAreas(in PlanInput) []string {
	candidates := cleanList(in.Sectors)
	for _, g := range cleanList(in.Goals) {
		dup := false
		for _, c := range candidates {
			if strings.EqualFold(c, g) {
				dup = true
				break
			}
		}
		if !dup {
			candidates = append(candidates, g)
		}
	}

	if len(candidates) == 0 && strings.TrimSpace(in.Prompt) != "" {
		rough := strings.FieldsFunc(in.Prompt, func(r rune) bool { return r == ',' || r == '\n' })
		for _, part := range rough {
			if s := strings.TrimSpace(part); s != "" {
				candidates = append(candidates, s)
			}
			if len(candidates) == 3 {
				break
			}
		}
	}

	if len(candidates) == 0 {
		candidates = []string{
			"applied AI for public services",
			"supply chain resilience",
			"workforce upskilling",
		}
	}
	if len(candidates) > 4 {
		candidates = candidates[:4]
	}
	return candidates
}

func defaultActors(region string) map[string]Actor {
	region = strings.TrimSpace(region)
	name := func(suffix, fallback string) string {
		if region != "" {
			return region + " " + suffix
		}
		return fallback
	}
	return map[string]Actor{
		"university": {
			Name: name("research university consortium", "university consortium"),
			Capabilities: []string{
				"research & evaluation",
				"talent pipeline (students, postdocs)",
				"labs and prototyping",
				"training and curriculum design",
			},
			Incentives:  []string{"publish & translate research", "funding", "student outcomes"},
			Constraints: []string{"academic timelines", "IP policy complexity", "limited deployment capacity"},
		},
		"industry": {
			Name:         name("industry partners", "industry partners"),
			Capabilities: []string{"product engineering", "go-to-market", "operations & scaling", "customer access"},
			Incentives:   []string{"revenue", "cost reduction", "competitive advantage"},
			Constraints:  []string{"quarterly delivery pressure", "risk management", "legacy systems"},
		},
		"government": {
			Name:         name("government agencies", "government agencies"),
			Capabilities: []string{"regulation & procurement", "public datasets", "policy levers", "convening power"},
			Incentives:   []string{"public value", "equity & compliance", "economic development"},
			Constraints:  []string{"procurement cycles", "legal constraints", "political risk"},
		},
	}
}

// BuildPlan fills the initiative templates from the input. Apart from the
// generated_at stamp, output depends only on the input.
func BuildPlan(in PlanInput, now time.Time) Plan {
	horizon := strings.TrimSpace(in.Horizon)
	if horizon == "" {
		horizon = "12 months"
	}
	region := strings.TrimSpace(in.Region)
	regionLabel := region
	if regionLabel == "" {
		regionLabel = "the region"
	}

	focusAreas := deriveFocusAreas(in)
	actors := defaultActors(region)
	constraints := cleanList(in.Constraints)

	var initiatives []Initiative
	for _, area := range focusAreas {
		if len(initiatives) == 3 {
			break
		}
		approach := "Stand up a joint testbed: define a reference architecture, establish data-sharing and IP terms, " +
			"run 2 pilot deployments, and publish an evaluation playbook for repeatable scaling."
		if len(constraints) > 0 {
			approach += " Constraints to honor: " + strings.Join(constraints, "; ") + "."
		}

		initiatives = append(initiatives, Initiative{
			Title: titleCase(area) + " Testbed & Deployment Sprint",
			Problem: fmt.Sprintf("%s needs faster translation of research into deployable solutions in %s, "+
				"while balancing public value, commercial viability, and compliance.", regionLabel, area),
			Approach: approach,
			Roles: map[string][]string{
				"university": {
					"define evaluation protocol and baseline",
					"provide prototyping support and talent placements",
					"independent impact assessment",
				},
				"industry": {
					"build production-grade MVPs",
					"own integration, security hardening, and operations",
					"commercialization plan and customer success",
				},
				"government": {
					"provide problem statements and procurement pathway",
					"enable access to data and deployment environments",
					"define compliance and equity requirements",
				},
			},
			Milestones90d: []string{
				"Agree on governance, IP, and data-sharing terms (1-2 weeks)",
				"Select two pilot use-cases and define measurable outcomes (2-3 weeks)",
				"Deliver MVPs into a controlled test environment (6-8 weeks)",
				"Run evaluation and publish a scale/no-scale decision memo (by day 90)",
			},
			SuccessMetrics: []string{
				"Time-to-pilot (weeks)",
				"Outcome lift vs. baseline (domain KPI)",
				"Compliance pass rate (security/privacy/accessibility)",
				"Adoption/usage in pilot cohorts",
			},
			Risks: []string{
				"Misaligned incentives across partners",
				"Data access delays or poor data quality",
				"Procurement/legal bottlenecks",
				"Pilot success that fails to scale operationally",
			},
			Mitigations: []string{
				"Single charter with decision rights and escalation path",
				"Data readiness checklist and synthetic data fallback",
				"Early legal review; pre-approved contracting vehicles where possible",
				"Operational owner named in industry; ops readiness gate before expansion",
			},
		})
	}

	plan := Plan{
		Meta: PlanMeta{
			GeneratedAt: now.UTC().Truncate(time.Second),
			Horizon:     horizon,
			Region:      region,
		},
		FocusAreas:  focusAreas,
		Actors:      actors,
		Initiatives: initiatives,
	}
	plan.Markdown = renderMarkdown(plan, cleanList(in.Goals), constraints)
	return plan
}

func renderMarkdown(p Plan, goals, constraints []string) string {
	var b strings.Builder
	b.WriteString("## Triple Helix Innovation Plan\n\n")
	region := p.Meta.Region
	if region == "" {
		region = "-"
	}
	fmt.Fprintf(&b, "- **Region**: %s\n", region)
	fmt.Fprintf(&b, "- **Horizon**: %s\n", p.Meta.Horizon)
	if len(goals) > 0 {
		fmt.Fprintf(&b, "- **Goals**: %s\n", strings.Join(goals, ", "))
	}
	if len(constraints) > 0 {
		fmt.Fprintf(&b, "- **Constraints**: %s\n", strings.Join(constraints, ", "))
	}
	fmt.Fprintf(&b, "- **Focus areas**: %s\n\n", strings.Join(p.FocusAreas, ", "))

	for i, init := range p.Initiatives {
		fmt.Fprintf(&b, "### Initiative %d: %s\n\n", i+1, init.Title)
		fmt.Fprintf(&b, "**Problem**: %s\n\n", init.Problem)
		fmt.Fprintf(&b, "**Approach**: %s\n\n", init.Approach)
		b.WriteString("**Roles**:\n")
		for _, helix := range []string{"university", "industry", "government"} {
			fmt.Fprintf(&b, "- %s%s: %s\n", strings.ToUpper(helix[:1]), helix[1:], strings.Join(init.Roles[helix], ", "))
		}
		b.WriteString("\n**90-day milestones**:\n")
		for _, m := range init.Milestones90d {
			fmt.Fprintf(&b, "- %s\n", m)
		}
		b.WriteString("\n**Success metrics**:\n")
		for _, m := range init.SuccessMetrics {
			fmt.Fprintf(&b, "- %s\n", m)
		}
		b.WriteString("\n**Risks & mitigations**:\n")
		for j := range init.Risks {
			if j < len(init.Mitigations) {
				fmt.Fprintf(&b, "- %s: %s\n", init.Risks[j], init.Mitigations[j])
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
