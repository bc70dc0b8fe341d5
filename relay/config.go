package relay

// Version is reported to MCP clients.
const Version = "v0.1.0"

// Config is the relay server configuration.
type Config struct {
	// Address to listen on (e.g., ":8000")
	ListenAddr string

	// Persona is the instruction entry sent ahead of every conversation.
	// Empty uses prompt.DefaultPersona.
	Persona string
}
