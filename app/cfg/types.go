package cfg

type Cfg struct {
	// Application configuration
	ConfigPath string
	DBPath     string
	Port       string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string

	// Positional arguments: the subcommand and its operands
	Args []string
}
