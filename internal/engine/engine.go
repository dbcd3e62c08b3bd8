// Package engine is the deterministic, rule-based responder used when no
// provider is configured. Identical input always yields identical output.
package engine

import (
	"strings"
)

// Intents the triage step can assign, in priority order. The first
// matching keyword set wins; IntentGeneral is the default.
const (
	IntentFunding           = "funding"
	IntentCommercialization = "commercialization"
	IntentPolicy            = "policy"
	IntentResearch          = "research"
	IntentPartnership       = "partnership"
	IntentGeneral           = "general"
)

// intentRules is evaluated top to bottom; order is part of the contract.
var intentRules = []struct {
	intent   string
	keywords []string
}{
	{IntentFunding, []string{"grant", "funding", "proposal", "call for", "rfp"}},
	{IntentCommercialization, []string{"startup", "product", "go-to-market", "commercial", "pricing"}},
	{IntentPolicy, []string{"policy", "regulation", "law", "compliance", "public sector", "government"}},
	{IntentResearch, []string{"research", "paper", "university", "lab", "prototype", "method"}},
	{IntentPartnership, []string{"partnership", "mou", "consortium", "collaboration", "stakeholder"}},
}

var commonQuestions = []string{
	"What country/region are you operating in?",
	"What is the target sector (e.g., health, energy, agri, fintech)?",
	"What stage are you at (idea, prototype, pilot, scale)?",
	"Who are the key stakeholders you already have (academia/industry/government)?",
}

var intentQuestions = map[string][]string{
	IntentFunding: {
		"What is your rough budget range and timeline?",
		"Is the lead applicant a university, company, or public agency?",
	},
	IntentCommercialization: {
		"Who is the buyer/user and what pain are you solving?",
		"Do you have IP to protect (patent, know-how, data)?",
	},
	IntentPolicy: {
		"What policy objective are you aiming for (growth, jobs, resilience, inclusion)?",
		"Are there specific regulations or standards you must meet?",
	},
	IntentResearch: {
		"What is the research question and what evidence would validate it?",
		"What datasets, equipment, or facilities do you need?",
	},
	IntentPartnership: {
		"What value does each helix bring (knowledge, market access, legitimacy)?",
		"How will decisions be made (steering group, PI-led, joint venture)?",
	},
}

// TriageIntent classifies a message into one of the six intents by
// case-insensitive keyword membership.
func TriageIntent(message string) string {
	m := strings.ToLower(strings.TrimSpace(message))
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(m, kw) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

// ClarifyingQuestions returns the intent-specific questions followed by
// the common ones, capped at five.
func ClarifyingQuestions(intent string) []string {
	qs := append([]string{}, intentQuestions[intent]...)
	qs = append(qs, commonQuestions...)
	if len(qs) > 5 {
		qs = qs[:5]
	}
	return qs
}

// Reply is one offline answer plus its triage metadata.
type Reply struct {
	Answer       string `json:"answer"`
	Intent       string `json:"intent"`
	HistoryTurns int    `json:"history_turns"`
}

// GenerateReply produces the fixed-template Triple Helix framing for a
// message. historyTurns is metadata only; it does not change the answer.
func GenerateReply(message string, historyTurns int) Reply {
	intent := TriageIntent(message)
	questions := ClarifyingQuestions(intent)

	var b strings.Builder
	b.WriteString("Here's a Triple-Helix framing (Academia x Industry x Government):\n\n")
	b.WriteString("1) Academia (knowledge): What new insight/tech is needed, and what proof (data, prototype, publication) will de-risk it?\n")
	b.WriteString("2) Industry (value): Who pays/uses it, what is the adoption path, and what incentives/ROI exist?\n")
	b.WriteString("3) Government (enabling): What policies, standards, procurement, or funding can accelerate adoption and reduce risk?\n\n")
	b.WriteString("A practical next step is to define a joint pilot with clear roles, success metrics, and a governance model.\n\n")
	b.WriteString("To tailor this, answer:\n")
	for _, q := range questions {
		b.WriteString("- ")
		b.WriteString(q)
		b.WriteString("\n")
	}

	return Reply{
		Answer:       strings.TrimRight(b.String(), "\n"),
		Intent:       intent,
		HistoryTurns: historyTurns,
	}
}
