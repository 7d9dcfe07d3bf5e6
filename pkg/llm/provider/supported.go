package provider

// Supported backend name constants.
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Ollama    = "ollama"
)

// SupportedClients returns the list of all supported backend names.
func SupportedClients() []string {
	return []string{Anthropic, OpenAI, Ollama}
}

// Supported reports whether name is a known backend.
func Supported(name string) bool {
	for _, n := range SupportedClients() {
		if n == name {
			return true
		}
	}
	return false
}
