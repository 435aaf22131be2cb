package core

import (
	"fmt"
	"strings"

	"github.com/fitflow/fitflow-backend/internal/store"
)

const jsonRules = `You are a JSON API.

RULES:
- Output ONLY valid JSON
- No markdown
- No commentary
`

const planSchema = `Return JSON:
{
  "workoutPlan": ["String"],
  "dietGuidance": {
    "dailyCalorieRange": "String",
    "macroSplit": "String",
    "mealSuggestions": ["String"]
  },
  "injuryConsiderations": ["String"]
}
`

const narrativeSchema = `Return JSON:
{
  "personalizedInsight": "String",
  "progressExpectations": {
    "month1": "String"
  },
  "commonMistakes": ["String"],
  "motivationalTip": "String"
}
`

// BuildPlanPrompt asks for the workout plan, diet guidance and injury considerations.
func BuildPlanPrompt(profile *store.Profile, context string) string {
	var b strings.Builder
	b.WriteString(jsonRules)
	fmt.Fprintf(&b, "\nUser goal: %s\nInjury: %s\n", profileGoal(profile), profileInjury(profile))
	writeReference(&b, context)
	b.WriteString("\n")
	b.WriteString(planSchema)
	return b.String()
}

// BuildNarrativePrompt asks for the insight, expectations, mistakes and motivation texts.
func BuildNarrativePrompt(profile *store.Profile, context string) string {
	var b strings.Builder
	b.WriteString(jsonRules)
	fmt.Fprintf(&b, "\nUser goal: %s\n", profileGoal(profile))
	writeReference(&b, context)
	b.WriteString("\n")
	b.WriteString(narrativeSchema)
	return b.String()
}

func writeReference(b *strings.Builder, context string) {
	if strings.TrimSpace(context) == "" {
		return
	}
	b.WriteString("\nReference material (use it where relevant, do not cite it):\n")
	b.WriteString(context)
	b.WriteString("\n")
}

func profileGoal(profile *store.Profile) string {
	if profile == nil || strings.TrimSpace(profile.Goals.Primary) == "" {
		return "fitness"
	}
	return profile.Goals.Primary
}

func profileInjury(profile *store.Profile) string {
	if profile == nil || strings.TrimSpace(profile.Preferences.Injury) == "" {
		return "none"
	}
	return profile.Preferences.Injury
}
