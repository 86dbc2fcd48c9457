package config

// ConfigDiff describes what changed between two configs. Only fields that can
// be safely hot-reloaded are applied at runtime; provider changes are
// surfaced so the caller can log that a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AnalysisChanged is true when the language hints or chunking changed.
	// These apply to the next analysis without a restart.
	AnalysisChanged bool

	// ProvidersChanged is true if any provider slot changed. Provider
	// construction happens at startup, so these require a restart.
	ProvidersChanged bool
	ProviderChanges  []ProviderDiff
}

// ProviderDiff describes what changed for a single provider slot.
type ProviderDiff struct {
	// Slot is "transcriber", "report", or "embeddings".
	Slot string

	NameChanged        bool
	ModelChanged       bool
	CredentialsChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Analysis tuning
	if old.Analysis != new.Analysis {
		d.AnalysisChanged = true
	}

	// Provider slots
	slots := []struct {
		name     string
		old, new ProviderEntry
	}{
		{"transcriber", old.Providers.Transcriber, new.Providers.Transcriber},
		{"report", old.Providers.Report, new.Providers.Report},
		{"embeddings", old.Providers.Embeddings, new.Providers.Embeddings},
	}
	for _, s := range slots {
		pd := diffProvider(s.name, s.old, s.new)
		if pd.NameChanged || pd.ModelChanged || pd.CredentialsChanged {
			d.ProviderChanges = append(d.ProviderChanges, pd)
			d.ProvidersChanged = true
		}
	}

	return d
}

// diffProvider compares two entries for the same slot.
func diffProvider(slot string, old, new ProviderEntry) ProviderDiff {
	pd := ProviderDiff{Slot: slot}

	if old.Name != new.Name {
		pd.NameChanged = true
	}
	if old.Model != new.Model {
		pd.ModelChanged = true
	}
	if old.APIKey != new.APIKey || old.BaseURL != new.BaseURL {
		pd.CredentialsChanged = true
	}

	return pd
}
