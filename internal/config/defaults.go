package config

// DefaultSettings returns the built-in runtime settings.
func DefaultSettings() *Settings {
	return &Settings{
		ConcurrencyLimit:      4,
		OutputBufferCap:       256 * 1024,
		OutputTailLines:       200,
		TerminateGraceSeconds: 5,
	}
}
