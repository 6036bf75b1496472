package prep

// Defaults applied to a zero Config.
const (
	DefaultMaxUploadBytes = 5 << 20
	DefaultVoice          = "alloy"
)

// DefaultAudioTypes are the MIME types accepted for voice input.
var DefaultAudioTypes = []string{"audio/mpeg", "audio/mp3", "audio/wav", "audio/ogg"}

// Config bounds voice input and output.
type Config struct {
	MaxUploadBytes int64
	AllowedTypes   []string
	DefaultVoice   string
}

func (c Config) withDefaults() Config {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = DefaultAudioTypes
	}
	if c.DefaultVoice == "" {
		c.DefaultVoice = DefaultVoice
	}
	return c
}
