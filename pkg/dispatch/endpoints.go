package dispatch

// Default collection endpoints.
const (
	SecureDebugEndpoint   = "https://ssl.google-analytics.com/debug/collect"
	InsecureDebugEndpoint = "http://www.google-analytics.com/debug/collect"
	SecureEndpoint        = "https://ssl.google-analytics.com/collect"
	InsecureEndpoint      = "http://www.google-analytics.com/collect"
)

// Endpoints holds the four collection URLs a dispatcher chooses between.
type Endpoints struct {
	SecureDebug   string `yaml:"secure_debug"`
	InsecureDebug string `yaml:"insecure_debug"`
	Secure        string `yaml:"secure"`
	Insecure      string `yaml:"insecure"`
}

// DefaultEndpoints returns the public collection endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		SecureDebug:   SecureDebugEndpoint,
		InsecureDebug: InsecureDebugEndpoint,
		Secure:        SecureEndpoint,
		Insecure:      InsecureEndpoint,
	}
}

// withDefaults fills empty URLs from DefaultEndpoints.
func (e Endpoints) withDefaults() Endpoints {
	def := DefaultEndpoints()
	if e.SecureDebug == "" {
		e.SecureDebug = def.SecureDebug
	}
	if e.InsecureDebug == "" {
		e.InsecureDebug = def.InsecureDebug
	}
	if e.Secure == "" {
		e.Secure = def.Secure
	}
	if e.Insecure == "" {
		e.Insecure = def.Insecure
	}
	return e
}

// Select returns the endpoint for the given debug and secure flags.
func (e Endpoints) Select(debug, secure bool) string {
	switch {
	case debug && secure:
		return e.SecureDebug
	case debug:
		return e.InsecureDebug
	case secure:
		return e.Secure
	default:
		return e.Insecure
	}
}

// Uniform points every endpoint at the same URL. Used for local collectors.
func Uniform(url string) Endpoints {
	return Endpoints{SecureDebug: url, InsecureDebug: url, Secure: url, Insecure: url}
}

// Settings are the runtime switches of a dispatcher.
type Settings struct {
	Enabled               bool `yaml:"enabled"`
	Secure                bool `yaml:"secure"`
	Debug                 bool `yaml:"debug"`
	PostData              bool `yaml:"post_data"`
	BustCache             bool `yaml:"bust_cache"`
	AutoTrackConnectivity bool `yaml:"auto_track_connectivity"`
}

// DefaultSettings returns enabled, secure, non-debug POST delivery without cache busting.
func DefaultSettings() Settings {
	return Settings{
		Enabled:  true,
		Secure:   true,
		PostData: true,
	}
}
