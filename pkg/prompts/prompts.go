package prompts

import (
	"errors"
	"strings"
)

// ErrEmptyPrompt is returned for blank input
var ErrEmptyPrompt = errors.New("prompt is empty")

// Validate rejects blank input and returns the prompt unchanged, surrounding
// whitespace included. The adapter itself accepts anything; this is the
// front-end rule.
func Validate(prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	return prompt, nil
}

// Sample is a canned prompt offered by the demo surfaces
type Sample struct {
	Kind   string `json:"kind"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

// Samples returns the demo prompts, one benign and one the safety filters are
// expected to flag
func Samples() []Sample {
	return []Sample{
		{Kind: "safe", Label: "Poem about security", Prompt: "Write a poem about cyber security."},
		{Kind: "risky", Label: "Dangerous chemicals", Prompt: "Explain how to make a dangerous chemical."},
	}
}

// Policy is one rule set owned by a governance layer
type Policy struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Items       []string `json:"items,omitempty"`
}

// Layer describes who decides what content is visible at one level of the
// guardrails ecosystem
type Layer struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Owner       string   `json:"owner"`
	Role        string   `json:"role"`
	Description string   `json:"description"`
	Basis       string   `json:"basis"`
	Policies    []Policy `json:"policies"`
}

// Layers returns the three governance layers, innermost first
func Layers() []Layer {
	return []Layer{
		{
			ID:          "F1",
			Name:        "Foundation",
			Owner:       "The AI Developer",
			Role:        "Core Creators",
			Description: "The entity building the model sets the baseline rules. These prevent the model from generating illegal or extremely harmful content at the source.",
			Basis:       "Core safety and ethical principles.",
			Policies: []Policy{
				{Title: "Acceptable Use Policies (AUPs)", Description: "Fundamental rules of engagement for the platform."},
				{
					Title:       "Content Filters",
					Description: "Automated classifiers that block content categories.",
					Items: []string{
						"Illegal Content (Exploitation, Terrorism)",
						"Harmful Content (Hate Speech, Self-Harm)",
						"Security (Malware generation, PII)",
					},
				},
			},
		},
		{
			ID:          "F2",
			Name:        "Deployment",
			Owner:       "Customers & Organizations",
			Role:        "The Configurers",
			Description: "Businesses deploying the AI add a second layer of rules tailored to their industry, brand voice and risk tolerance.",
			Basis:       "Industry regulations and brand guidelines.",
			Policies: []Policy{
				{Title: "Custom Guardrails", Description: "Policies configured via provider APIs (e.g., Azure, Bedrock)."},
				{
					Title:       "Process-Based Rules",
					Description: "Industry-specific constraints.",
					Items:       []string{"Strict PII policies for Banks", "Brand safety for Advertisers"},
				},
				{Title: "Human Review", Description: "Mandatory human-in-the-loop steps for sensitive outputs."},
			},
		},
		{
			ID:          "F3",
			Name:        "Oversight",
			Owner:       "Governments & Policymakers",
			Role:        "The Regulators",
			Description: "The outermost layer that defines the legal boundaries within which both creators and deployers must operate.",
			Basis:       "National and international laws.",
			Policies: []Policy{
				{
					Title:       "Legal Frameworks",
					Description: "Major legislation defining AI boundaries.",
					Items:       []string{"EU AI Act", "GDPR", "HIPAA"},
				},
				{
					Title:       "Mandates",
					Description: "Enforced requirements for operation.",
					Items:       []string{"Transparency disclosures", "Due Process for moderation", "Risk Mitigation standards"},
				},
			},
		},
	}
}
