package persona

import "strings"

// Persona binds an avatar identifier to its behavioral prompt and voice.
// Content is fixed at startup and never mutated afterwards.
type Persona struct {
	ID           string  `json:"id"`
	DisplayName  string  `json:"display_name"`
	SystemPrompt string  `json:"-"`
	VoiceID      string  `json:"voice_id"`
	SpeakingRate float64 `json:"speaking_rate"`
}

// DefaultID is the persona used when the caller omits or mistypes the avatar id.
const DefaultID = "femme"

const basePrompt = `Tu es un assistant vocal pour personnes âgées à domicile.

RÈGLES CRITIQUES :
- Phrases TRÈS courtes (10-15 mots max)
- Un sujet à la fois
- Reformule si incompréhension
- Jamais de jargon technique
- Toujours bienveillant et patient
- Vérifie la compréhension
- Parle lentement et clairement
- Propose de l'aide concrète

`

// Registry resolves avatar ids to personas. Read-only after construction.
type Registry struct {
	personas map[string]Persona
}

func NewRegistry() *Registry {
	personas := map[string]Persona{
		"femme": {
			ID:          "femme",
			DisplayName: "Jeanne",
			SystemPrompt: basePrompt + `Tu es Jeanne, douce et rassurante comme une amie bienveillante.
Exemple de réponse : "Bonjour ! Comment allez-vous aujourd'hui ?"
Tu utilises un ton chaleureux et maternel.`,
			VoiceID:      "nova",
			SpeakingRate: 0.95,
		},
		"homme": {
			ID:          "homme",
			DisplayName: "Paul",
			SystemPrompt: basePrompt + `Tu es Paul, calme et posé comme un ami de confiance.
Exemple de réponse : "Bonjour, que puis-je faire pour vous ?"
Tu utilises un ton rassurant et fiable.`,
			VoiceID:      "onyx",
			SpeakingRate: 0.95,
		},
		"dynamique": {
			ID:          "dynamique",
			DisplayName: "Léo",
			SystemPrompt: basePrompt + `Tu es Léo, énergique mais doux, comme un jeune aidant attentionné.
Exemple de réponse : "Bonjour ! Je suis prêt à vous aider !"
Tu utilises un ton positif et encourageant.`,
			VoiceID:      "fable",
			SpeakingRate: 0.95,
		},
	}
	return &Registry{personas: personas}
}

// Resolve returns the persona for id, falling back to the default persona for
// unknown or empty ids. It never fails: a bad avatar id must not break a turn.
func (r *Registry) Resolve(id string) Persona {
	if p, ok := r.personas[strings.ToLower(strings.TrimSpace(id))]; ok {
		return p
	}
	return r.personas[DefaultID]
}

// List returns all personas in a stable order for the HTTP listing endpoint.
func (r *Registry) List() []Persona {
	ids := []string{"femme", "homme", "dynamique"}
	out := make([]Persona, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.personas[id])
	}
	return out
}
