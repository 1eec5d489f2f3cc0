package status

const (
	ModeDryRun = "dry-run"

	DetailMissing = "missing"
	DetailOrphan  = "orphan"
	DetailDrift   = "drift"
)

type Summary struct {
	Missing int `json:"missing"`
	Orphan  int `json:"orphan"`
	Drift   int `json:"drift"`
}

// Detail describes one peer whose persisted and live definitions disagree.
// Missing peers are persisted but absent from the interface, orphans are live
// but not persisted, drifted peers differ in allowed IPs.
type Detail struct {
	Kind                string   `json:"kind"`
	PublicKey           string   `json:"publicKey"`
	PersistedAllowedIPs []string `json:"persistedAllowedIps,omitempty"`
	RuntimeAllowedIPs   []string `json:"runtimeAllowedIps,omitempty"`
}

type Report struct {
	Iface   string   `json:"iface"`
	Mode    string   `json:"mode"`
	Summary Summary  `json:"summary"`
	Details []Detail `json:"details"`
}
