package config

import "flag"

// levelUnset is below every valid deflate level.
const levelUnset = -3

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagProduction = flag.Bool("production", false, "Enable the Production extension")
	flagUnit       = flag.String("unit", "", "Model unit (millimeter, micron, centimeter, inch, foot, meter)")
	flagLevel      = flag.Int("level", levelUnset, "Deflate level from -2 (huffman only) to 9")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after the global flags: the command
// and its own arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagProduction {
		cfg.Model.Production = true
	}
	if *flagUnit != "" {
		cfg.Model.Unit = *flagUnit
	}
	if *flagLevel != levelUnset {
		cfg.Package.CompressionLevel = *flagLevel
	}
}
