package orchestrator

import "cadenza/internal/lavalink"

// ManagerSource adapts the node manager to the NodeSource interface the
// orchestrator consumes.
type ManagerSource struct {
	Mgr *lavalink.Manager
}

func (s ManagerSource) Select() (NodeHandle, error) {
	n, err := s.Mgr.SelectNode()
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s ManagerSource) Node(id string) (NodeHandle, bool) {
	n, ok := s.Mgr.Node(id)
	if !ok {
		return nil, false
	}
	return n, true
}

func (s ManagerSource) Events() <-chan lavalink.Event {
	return s.Mgr.Events()
}
