package manager

import "sttworker/pkg/types"

// Snapshot returns a read-only view of the slot.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{State: c.state, ModelID: c.id, LoadedAt: c.loadedAt, Loads: c.loads, Err: c.err}
	if c.model != nil {
		s.Device = c.model.Device()
	}
	return s
}

// Status builds the cache part of the /status response.
func (c *Cache) Status() types.CacheStatus {
	s := c.Snapshot()
	st := types.CacheStatus{
		State:      string(s.State),
		ModelID:    s.ModelID,
		Device:     s.Device,
		LoadsTotal: s.Loads,
		LastError:  s.Err,
	}
	if s.ModelID != "" {
		st.LoadedAt = s.LoadedAt.Unix()
	}
	return st
}
