package usage

// State names the single pane the dashboard should render.
type State string

const (
	StateLoading State = "loading"
	StateError   State = "error"
	StateEmpty   State = "empty"
	StateSuccess State = "success"
)

// Level grades one metric against its plan limit.
type Level string

const (
	LevelOK        Level = "ok"
	LevelNearLimit Level = "near_limit"
	LevelOverLimit Level = "over_limit"
)

const nearLimitThreshold = 0.8

// MetricView is one gauge row in the usage panel.
type MetricView struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
	Level Level `json:"level"`
}

// View is the fully selected render state for the usage panel.
type View struct {
	State       State       `json:"state"`
	APICalls    *MetricView `json:"api_calls,omitempty"`
	StorageGB   *MetricView `json:"storage_gb,omitempty"`
	TeamMembers *MetricView `json:"team_members,omitempty"`
}

// Select picks exactly one render state. Loading wins over everything,
// then error, then empty; metrics views are only populated on success.
func Select(metrics *Metrics, limits Limits, loading bool, err error) View {
	if loading {
		return View{State: StateLoading}
	}
	if err != nil {
		return View{State: StateError}
	}
	if metrics.IsEmpty() {
		return View{State: StateEmpty}
	}
	return View{
		State:       StateSuccess,
		APICalls:    metricView(metrics.APICalls, limits.APICalls),
		StorageGB:   metricView(metrics.StorageGB, limits.StorageGB),
		TeamMembers: metricView(metrics.TeamMembers, limits.TeamMembers),
	}
}

func metricView(used, limit int64) *MetricView {
	return &MetricView{
		Used:  used,
		Limit: limit,
		Level: levelFor(used, limit),
	}
}

func levelFor(used, limit int64) Level {
	if limit <= 0 {
		return LevelOK
	}
	ratio := float64(used) / float64(limit)
	switch {
	case ratio >= 1:
		return LevelOverLimit
	case ratio >= nearLimitThreshold:
		return LevelNearLimit
	default:
		return LevelOK
	}
}
