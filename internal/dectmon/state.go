package dectmon

/*------------------------------------------------------------------
 *
 * Purpose:	MonitorState is the single explicit value carrying what
 *		the original keeps as process-globals: the handle list
 *		(dect_handles) and the locked counter. Design note 9.A.1
 *		calls for exactly this: "Model as an explicit
 *		MonitorState value passed through the core; the lock
 *		counter is a field on it, not a process-global."
 *
 *------------------------------------------------------------------*/

// PARI is the Primary Access Rights Identity of a DECT FP system:
// EMC (manufacturer code) + FPN (park number).
type PARI struct {
	EMC uint16 // 16-bit equipment manufacturer code
	FPN uint32 // 20-bit park number
}

func (p PARI) empty() bool {
	return p == PARI{}
}

// MonitorState is the top-level value owning every cluster handle and
// the global locked-handle count (invariant 4 of section 3: "Lock
// counter equals the number of handles whose locked flag is true").
type MonitorState struct {
	Clusters    map[string]*ClusterHandle
	lockedCount int
	pinDefault  string

	Metrics *Metrics
	Sink    *TraceSink
}

// NewMonitorState creates an empty monitor with the given default
// authentication PIN (section 6's --auth-pin, default "0000").
func NewMonitorState(defaultPin string, sink *TraceSink, metrics *Metrics) *MonitorState {
	return &MonitorState{
		Clusters:   make(map[string]*ClusterHandle),
		pinDefault: defaultPin,
		Sink:       sink,
		Metrics:    metrics,
	}
}

// LockedCount returns the global count of currently locked clusters.
func (m *MonitorState) LockedCount() int {
	return m.lockedCount
}

// OpenCluster creates a new, unlocked cluster handle bound to the
// given capture-cluster name. It is a configuration error (section 7)
// to open the same cluster name twice.
func (m *MonitorState) OpenCluster(name string, pin string) (*ClusterHandle, error) {
	if _, exists := m.Clusters[name]; exists {
		return nil, &MonitorError{Kind: ErrFatalConfig, Layer: "cluster", Cluster: name, Err: errDuplicateCluster{name}}
	}

	if pin == "" {
		pin = m.pinDefault
	}

	var h = &ClusterHandle{
		name:          name,
		pts:           newPtArena(),
		tbcs:          newTbcArena(),
		slots:         [24]TbcID{},
		pin:           pin,
		state:         m,
		pendingAccess: make(map[uint8]*pendingTbc),
		idleTimers:    make(map[TbcID]TimerID),
	}

	m.Clusters[name] = h

	return h, nil
}

// findHandleByPARI enforces invariant 1 of section 3: a non-empty PARI
// is unique across all handles. It returns the owning handle, or nil
// if no handle currently tracks pari.
func (m *MonitorState) findHandleByPARI(pari PARI) *ClusterHandle {
	if pari.empty() {
		return nil
	}

	for _, h := range m.Clusters {
		if h.pari == pari {
			return h
		}
	}

	return nil
}

type errDuplicateCluster struct{ name string }

func (e errDuplicateCluster) Error() string { return "cluster already bound: " + e.name }
