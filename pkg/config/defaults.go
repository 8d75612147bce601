package config

const (
	defaultGatewayListen  = ":3335"
	defaultUpstream       = "http://localhost:11434"
	defaultDelimiter      = "newline"
	defaultField          = "response"
	defaultModel          = "llama2"
	defaultConnectTimeout = "60s"

	defaultAPIListen = ":3336"

	defaultKafkaTopic = "lmgate.generations"

	defaultClientGatewayTarget = "http://localhost:3335"
	defaultClientAPITarget     = "http://localhost:3336"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Gateway: GatewayConfig{
			Listen:         defaultGatewayListen,
			Upstream:       defaultUpstream,
			Delimiter:      defaultDelimiter,
			Field:          defaultField,
			DefaultModel:   defaultModel,
			ConnectTimeout: defaultConnectTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Events: EventsConfig{
			KafkaTopic: defaultKafkaTopic,
		},
		Client: ClientConfig{
			GatewayTarget: defaultClientGatewayTarget,
			APITarget:     defaultClientAPITarget,
		},
	}
}
