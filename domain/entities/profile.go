package entities

// SpecialityProfile configures the language model stage for one speciality
type SpecialityProfile struct {
	SystemPrompt string  `json:"system_prompt" yaml:"system_prompt"`
	Model        string  `json:"model,omitempty" yaml:"model"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
}

const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.2
)

var defaultSystemPrompts = map[Speciality]string{
	SpecialityGeneral: "You are a helpful voice assistant. Answer briefly in plain spoken language " +
		"without markdown, lists or emojis.",
	SpecialityCoding: "You are a programming assistant answering by voice. Explain code concisely " +
		"and never read out long listings.",
	SpecialityHomeControl: "You control a smart home. Use the available tools to act on devices and " +
		"confirm what you did in one short sentence.",
}

// SpecialityProfiles maps a single speciality to its profile
type SpecialityProfiles map[Speciality]SpecialityProfile

// DefaultSpecialityProfiles returns the built-in profile of every speciality
func DefaultSpecialityProfiles() SpecialityProfiles {
	profiles := make(SpecialityProfiles, len(defaultSystemPrompts))
	for speciality, prompt := range defaultSystemPrompts {
		profiles[speciality] = SpecialityProfile{
			SystemPrompt: prompt,
			MaxTokens:    DefaultMaxTokens,
			Temperature:  DefaultTemperature,
		}
	}
	return profiles
}

// Get returns the profile for speciality with unset fields filled from the
// defaults. Unknown specialities fall back to the General profile.
func (p SpecialityProfiles) Get(speciality Speciality) SpecialityProfile {
	profile, ok := p[speciality]
	if !ok {
		profile = p[SpecialityGeneral]
	}
	if profile.SystemPrompt == "" {
		profile.SystemPrompt = defaultSystemPrompts[speciality]
		if profile.SystemPrompt == "" {
			profile.SystemPrompt = defaultSystemPrompts[SpecialityGeneral]
		}
	}
	if profile.MaxTokens <= 0 {
		profile.MaxTokens = DefaultMaxTokens
	}
	if profile.Temperature <= 0 {
		profile.Temperature = DefaultTemperature
	}
	return profile
}
