package domain

// Capacity bounds for per-node worker counts. Values outside this range are
// rejected and the persisted value falls back to the default on load.
const (
	MinCapacityPerNode     = 100
	MaxCapacityPerNode     = 10000
	DefaultCapacityPerNode = 200
)

// Settings is the runtime configuration shared by the entitlement engine and
// the dispatcher. It is persisted as a single document and mutated only
// through the settings service.
type Settings struct {
	CapacityPerNode   int     `json:"capacity_per_node"`
	MaxConcurrentJobs int     `json:"max_concurrent_jobs"`
	RegularMaxSeconds int     `json:"regular_max_seconds"`
	VIPMaxSeconds     int     `json:"vip_max_seconds"`
	AdminMaxSeconds   int     `json:"admin_max_seconds"`
	PublicMaxSeconds  int     `json:"public_max_seconds"`
	CooldownSeconds   int     `json:"cooldown_seconds"` // 0 disables the cooldown window
	ResellerDiscount  float64 `json:"reseller_discount"`
	BlockedPorts      []int   `json:"blocked_ports"`
	AllowedChannels   []int64 `json:"allowed_channels"`
	PublicChannels    []int64 `json:"public_channels"`
	DispatcherEnabled bool    `json:"dispatcher_enabled"`
	// LaunchTemplate is the opaque remote command template. Placeholders:
	// {artifact} {target} {port} {duration} {capacity}.
	LaunchTemplate string `json:"launch_template"`
	// ArtifactPath is the job binary expected on every node.
	ArtifactPath string `json:"artifact_path"`
}

// DefaultSettings returns the documented defaults used when the persisted
// configuration is absent or unreadable.
func DefaultSettings() *Settings {
	return &Settings{
		CapacityPerNode:   DefaultCapacityPerNode,
		MaxConcurrentJobs: 3,
		RegularMaxSeconds: 240,
		VIPMaxSeconds:     400,
		AdminMaxSeconds:   600,
		PublicMaxSeconds:  150,
		CooldownSeconds:   0,
		ResellerDiscount:  0.20,
		BlockedPorts:      []int{8700, 20000, 443, 17500, 9031, 20002, 20001},
		AllowedChannels:   nil,
		PublicChannels:    nil,
		DispatcherEnabled: true,
		LaunchTemplate:    "nohup {artifact} {target} {port} {duration} {capacity} >/dev/null 2>&1 &",
		ArtifactPath:      "/opt/fleet/runner",
	}
}

// PortBlocked reports whether p is on the blocked-destination list.
func (s *Settings) PortBlocked(p int) bool {
	for _, b := range s.BlockedPorts {
		if b == p {
			return true
		}
	}
	return false
}

// ChannelAllowed reports whether jobs may be submitted from the channel.
// Direct requests (channel 0) are always allowed; listed public channels are
// allowed with reduced limits.
func (s *Settings) ChannelAllowed(id int64) bool {
	if id == 0 {
		return true
	}
	for _, c := range s.AllowedChannels {
		if c == id {
			return true
		}
	}
	return s.ChannelPublic(id)
}

// ChannelPublic reports whether the channel is a designated public-access
// scope.
func (s *Settings) ChannelPublic(id int64) bool {
	for _, c := range s.PublicChannels {
		if c == id {
			return true
		}
	}
	return false
}
