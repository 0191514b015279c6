package usage

// Metrics holds the current consumption counters for one user.
type Metrics struct {
	APICalls    int64 `json:"api_calls"`
	StorageGB   int64 `json:"storage_gb"`
	TeamMembers int64 `json:"team_members"`
}

// Limits holds the plan ceilings the metrics are measured against.
// A zero limit means the metric is unlimited.
type Limits struct {
	APICalls    int64 `json:"api_calls"`
	StorageGB   int64 `json:"storage_gb"`
	TeamMembers int64 `json:"team_members"`
}

// IsEmpty reports whether every counter is zero.
func (m *Metrics) IsEmpty() bool {
	return m == nil || (m.APICalls == 0 && m.StorageGB == 0 && m.TeamMembers == 0)
}
