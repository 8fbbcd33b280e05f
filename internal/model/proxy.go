package model

type KV struct {
	Key   string
	Value string
}

// Proxy is the minimal node representation shared by the subscription
// parsers and the profile renderer. Only Type=="ss" is produced.
type Proxy struct {
	Type string

	// Name comes from the subscription (#fragment or "remarks"). It may be
	// empty and is not unique; the profile renderer normalizes it.
	Name string

	Server   string
	Port     int
	Cipher   string
	Password string

	// PluginName/PluginOpts keep order (no map) so rendering is deterministic.
	PluginName string
	PluginOpts []KV

	// UDPRelay is copied from the owning subscription; nil means unset.
	UDPRelay *bool
}
