package memorycontext

// welcomeTemplate is one of the four blocks seeded for a brand-new user.
type welcomeTemplate struct {
	Label string
	Title string
	Body  string
}

var welcomeTemplates = []welcomeTemplate{
	{
		Label: "origin_story",
		Title: "Origin Story",
		Body: "## Who I Am At My Best\n\n" +
			"[Moments when they feel most alive, capable, energized]\n\n" +
			"## What I'm Building Toward\n\n" +
			"[6-12 month vision, concrete goals, why these matter]\n\n" +
			"## My Superpowers\n\n" +
			"[Natural strengths, what comes easily, what others come to them for]\n\n" +
			"## My Kryptonite\n\n" +
			"[What drains them, patterns they fight against, blind spots]\n",
	},
	{
		Label: "tech_relationship",
		Title: "Tech Relationship",
		Body: "## Current State\n\n" +
			"[How they use technology now—the good, the bad, the ugly]\n\n" +
			"## Where Technology Serves Me\n\n" +
			"[Tools, apps, patterns that genuinely help]\n\n" +
			"## Where I Get Hijacked\n\n" +
			"[Distraction patterns, default behaviors, time sinks]\n\n" +
			"## My Scrolling Triggers\n\n" +
			"[Emotional states, situations, times when they reach for the phone]\n\n" +
			"## What Intentional Would Look Like\n\n" +
			"[Their vision of technology serving their goals]\n",
	},
	{
		Label: "ai_partnership",
		Title: "AI Partnership",
		Body: "## What AI Should Help Me With\n\n" +
			"[Specific use cases aligned with their goals and strengths]\n\n" +
			"## What AI Should Never Do For Me\n\n" +
			"[Protected areas—judgment, relationships, creative voice, etc.]\n\n" +
			"## My Definition of Superhuman\n\n" +
			"[What \"becoming more fully themselves, amplified\" means for them]\n\n" +
			"## Guardrails\n\n" +
			"[Signs that AI use is becoming unhealthy or dependency-forming]\n",
	},
	{
		Label: "onboarding_progress",
		Title: "Current Progress",
		Body: "## Status\n\n" +
			"User is working their way through the Welcome module:\n\n" +
			"[ ] Phase 1: Presence (Who are you?)\n" +
			"[ ] Phase 2: Patterns (How do you relate to tech?)\n" +
			"[ ] Phase 3: Possibilities (How might AI serve you?)\n" +
			"[ ] Graduated\n\n" +
			"## Key Moments\n\n" +
			"[Breakthrough insights, memorable exchanges, turning points]\n\n" +
			"## Open Threads\n\n" +
			"[Questions still being explored, topics to return to]\n",
	},
}
