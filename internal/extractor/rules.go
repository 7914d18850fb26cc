package extractor

// Rules holds the configurable parts of edge detection. The grammar
// walk itself is fixed; these sets tune which library calls count as
// mutations, config reads, and environment access.
type Rules struct {
	// MutatingMethods are method names whose call mutates the receiver,
	// e.g. items.append(x).
	MutatingMethods map[string]bool

	// ConfigLoaders are fully qualified call paths that load
	// configuration from a file, e.g. json.load. A call with a string
	// literal argument produces a config file pseudo entity.
	ConfigLoaders map[string]bool

	// EnvReaders are fully qualified call paths that read environment
	// variables by name.
	EnvReaders map[string]bool
}

// DefaultRules returns the standard detection rule set
func DefaultRules() Rules {
	return Rules{
		MutatingMethods: map[string]bool{
			"append":     true,
			"extend":     true,
			"insert":     true,
			"remove":     true,
			"pop":        true,
			"clear":      true,
			"update":     true,
			"add":        true,
			"discard":    true,
			"setdefault": true,
			"popitem":    true,
			"sort":       true,
			"reverse":    true,
		},
		ConfigLoaders: map[string]bool{
			"json.load":         true,
			"json.loads":        true,
			"yaml.load":         true,
			"yaml.safe_load":    true,
			"toml.load":         true,
			"tomllib.load":      true,
			"configparser.read": true,
		},
		EnvReaders: map[string]bool{
			"os.getenv":      true,
			"os.environ.get": true,
		},
	}
}
