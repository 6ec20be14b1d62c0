package preprocess

// Config holds the transform parameters applied to an image before
// recognition. Zero values are not meaningful; start from DefaultConfig.
type Config struct {
	Contrast   float64 `mapstructure:"contrast" yaml:"contrast" json:"contrast"`
	Brightness float64 `mapstructure:"brightness" yaml:"brightness" json:"brightness"`
	Grayscale  bool    `mapstructure:"grayscale" yaml:"grayscale" json:"grayscale"`
	Scale      float64 `mapstructure:"scale" yaml:"scale" json:"scale"`
	Sharpen    bool    `mapstructure:"sharpen" yaml:"sharpen" json:"sharpen"`
	Threshold  bool    `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
}

// DefaultConfig returns the balanced settings used for the first pass.
func DefaultConfig() Config {
	return Config{
		Contrast:   1.3,
		Brightness: 1.2,
		Grayscale:  true,
		Scale:      2.0,
		Sharpen:    true,
		Threshold:  true,
	}
}

// Pass is a named preprocessing configuration.
type Pass struct {
	Name   string
	Config Config
}

// DefaultPasses returns the canonical pass sequence. The order is the
// retry policy: balanced first, high contrast for faded text, then no
// threshold for colored text the global binarization destroys. The values
// are tuned against real scan samples; do not adjust without revalidating.
func DefaultPasses() []Pass {
	return PassesFrom(DefaultConfig())
}

// PassesFrom builds the canonical pass sequence from a base config, so a
// tuned base propagates into the high-contrast and no-threshold variants.
func PassesFrom(base Config) []Pass {
	highContrast := base
	highContrast.Contrast = 1.5
	highContrast.Brightness = 1.3

	noThreshold := base
	noThreshold.Threshold = false

	return []Pass{
		{Name: "default", Config: base},
		{Name: "high-contrast", Config: highContrast},
		{Name: "no-threshold", Config: noThreshold},
	}
}
