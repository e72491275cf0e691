package models

// ModuleSummary describes one entry of the mirror's module list.
type ModuleSummary struct {
	Index    int     `json:"index"`
	Module   string  `json:"module"`
	Position *string `json:"position"`
	Header   *string `json:"header"`
}

// ModuleConfigEntry is a module entry together with its config object.
// Index is the entry's position in the module list; a module name may
// repeat, so (Module, Index) identify an entry.
type ModuleConfigEntry struct {
	Module   string         `json:"module" mapstructure:"module"`
	Position *string        `json:"position,omitempty" mapstructure:"position"`
	Header   *string        `json:"header,omitempty" mapstructure:"header"`
	Config   map[string]any `json:"config" mapstructure:"config"`
	Index    int            `json:"index" mapstructure:"-"`
}
