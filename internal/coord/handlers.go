package coord

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/wavesync/internal/locks"
	"github.com/DoyleJ11/wavesync/internal/metrics"
	"github.com/DoyleJ11/wavesync/internal/presence"
	"github.com/DoyleJ11/wavesync/internal/resource"
	"github.com/DoyleJ11/wavesync/pkg/types"
)

func (s *Service) handleConnect(m Connect) {
	c, err := s.reg.Add(m.ConnID, m.Username)
	if err != nil {
		s.log.Warn("connect rejected", zap.String("conn_id", m.ConnID), zap.Error(err))
		return
	}
	s.log.Info("client connected", zap.String("conn_id", c.ID), zap.String("username", c.Username))

	s.reply(c.ID, types.EvtConnectionEstablished, types.ConnectionEstablished{
		ClientID:    c.ID,
		Username:    c.Username,
		ClientCount: s.reg.Count(),
		Timestamp:   s.stamp(),
	})
	s.broadcast(s.router.GlobalAudience(c.ID, true), types.EvtClientsUpdated, s.clientsUpdated())
}

func (s *Service) handleDisconnect(m Disconnect) {
	// Removing first means nothing later in the loop can attribute a new lock
	// or scope to this connection.
	c, ok := s.reg.Remove(m.ConnID)
	if !ok {
		return
	}

	for _, l := range s.locks.ReleaseAllHeldBy(c.ID) {
		metrics.LocksReleased.WithLabelValues(types.ReasonDisconnect).Inc()
		s.log.Debug("lock released on disconnect", zap.String("resource_id", l.Key.String()), zap.String("conn_id", c.ID))
		s.broadcastUnlock(l, "", types.ReasonDisconnect)
	}

	if c.Scope != "" {
		s.broadcastPresence(c.Scope, types.ActionLeave, c, true)
	}
	s.broadcast(s.router.GlobalAudience("", true), types.EvtClientsUpdated, s.clientsUpdated())

	s.log.Info("client disconnected", zap.String("conn_id", c.ID), zap.String("username", c.Username))
}

func (s *Service) handleJoin(m JoinTerminal) {
	if m.TerminalID == "" {
		s.reject(m.ConnID, m.eventName(), types.ErrCodeMissingField, "terminal_id is required")
		return
	}
	prev, ok := s.reg.SetScope(m.ConnID, m.TerminalID)
	if !ok {
		s.log.Warn("join from unknown connection", zap.String("conn_id", m.ConnID))
		return
	}
	c, _ := s.reg.Get(m.ConnID)

	if prev != m.TerminalID {
		// leave-then-join: the old room hears about the departure first
		if prev != "" {
			s.broadcastPresence(prev, types.ActionLeave, c, false)
		}
		s.broadcastPresence(m.TerminalID, types.ActionJoin, c, false)
		s.log.Info("client joined terminal",
			zap.String("conn_id", c.ID),
			zap.String("terminal_id", m.TerminalID),
			zap.String("previous", prev))
	}

	s.reply(c.ID, types.EvtJoinSuccess, types.JoinSuccess{
		TerminalID: m.TerminalID,
		Clients:    s.TerminalClients(m.TerminalID),
	})
}

func (s *Service) handleLeave(m LeaveTerminal) {
	if m.TerminalID == "" {
		s.reject(m.ConnID, m.eventName(), types.ErrCodeMissingField, "terminal_id is required")
		return
	}
	c, ok := s.reg.Get(m.ConnID)
	if ok && c.Scope == m.TerminalID {
		s.reg.SetScope(c.ID, "")
		s.broadcastPresence(m.TerminalID, types.ActionLeave, c, false)
		s.log.Info("client left terminal", zap.String("conn_id", c.ID), zap.String("terminal_id", m.TerminalID))
	}
	s.reply(m.ConnID, types.EvtLeaveSuccess, types.LeaveSuccess{TerminalID: m.TerminalID})
}

func (s *Service) handleTerminalLifecycle(m TerminalLifecycle) {
	if m.TerminalID == "" {
		s.reject(m.ConnID, m.Event, types.ErrCodeMissingField, "terminal_id is required")
		return
	}

	ev := types.TerminalEvent{TerminalID: m.TerminalID, SenderID: m.ConnID, Timestamp: s.stamp()}
	switch m.Event {
	case types.EvtTerminalCreated:
		if m.Port == 0 {
			s.reject(m.ConnID, m.Event, types.ErrCodeMissingField, "port is required")
			return
		}
		ev.Name, ev.Port = m.Name, m.Port
		if ev.Name == "" {
			ev.Name = "New Terminal"
		}
	case types.EvtTerminalRenamed:
		if m.Name == "" {
			s.reject(m.ConnID, m.Event, types.ErrCodeMissingField, "name is required")
			return
		}
		ev.Name = m.Name
	case types.EvtTerminalClosed:
	default:
		s.reject(m.ConnID, m.Event, types.ErrCodeUnknownType, "unknown terminal event")
		return
	}

	s.broadcast(s.router.GlobalAudience(m.ConnID, false), m.Event, ev)
	s.log.Debug("terminal event relayed", zap.String("event", m.Event), zap.String("terminal_id", m.TerminalID))
}

func (s *Service) handleVariableUpdated(m VariableUpdated) {
	if m.TerminalID == "" || m.Name == "" {
		s.reject(m.ConnID, m.eventName(), types.ErrCodeMissingField, "terminal_id and name are required")
		return
	}
	if m.Action == "" {
		m.Action = "update"
	}
	s.broadcast(s.router.TerminalAudience(m.TerminalID, m.ConnID, false), types.EvtVariableChanged, types.VariableChanged{
		TerminalID: m.TerminalID,
		Name:       m.Name,
		Value:      m.Value,
		Action:     m.Action,
		SenderID:   m.ConnID,
		Timestamp:  s.stamp(),
	})
	s.log.Debug("variable change relayed", zap.String("terminal_id", m.TerminalID), zap.String("name", m.Name), zap.String("action", m.Action))
}

func (s *Service) handlePlaybookUpdated(m PlaybookUpdated) {
	if m.TerminalID == "" || m.Name == "" {
		s.reject(m.ConnID, m.eventName(), types.ErrCodeMissingField, "terminal_id and name are required")
		return
	}
	if m.Action == "" {
		m.Action = "update"
	}
	s.broadcast(s.router.TerminalAudience(m.TerminalID, m.ConnID, false), types.EvtPlaybookChanged, types.PlaybookChanged{
		TerminalID: m.TerminalID,
		Name:       m.Name,
		Action:     m.Action,
		SenderID:   m.ConnID,
		Timestamp:  s.stamp(),
	})
	s.log.Debug("playbook change relayed", zap.String("terminal_id", m.TerminalID), zap.String("name", m.Name), zap.String("action", m.Action))
}

func (s *Service) handleNotesUpdated(m NotesUpdated) {
	// writing is activity: keep the writer's notes lock from going stale
	s.locks.Touch(resource.NotesKey(m.TerminalID), m.ConnID)

	payload := types.NotesChanged{
		TerminalID: m.TerminalID,
		Content:    m.Content,
		SenderID:   m.ConnID,
		Timestamp:  s.stamp(),
	}
	if m.TerminalID != "" {
		s.broadcast(s.router.TerminalAudience(m.TerminalID, m.ConnID, false), types.EvtNotesChanged, payload)
		return
	}
	s.broadcast(s.router.GlobalAudience(m.ConnID, false), types.EvtGlobalNotesChanged, payload)
}

func (s *Service) handleEditingStarted(m EditingStarted) {
	rid := m.Key.String()
	c, ok := s.reg.Get(m.ConnID)
	if !ok {
		s.log.Warn("lock request from unknown connection", zap.String("conn_id", m.ConnID), zap.String("resource_id", rid))
		return
	}

	l, acquired := s.locks.Acquire(m.Key, c.ID, c.Username)
	switch {
	case acquired:
		metrics.LockRequests.WithLabelValues("granted").Inc()
		s.log.Info("editing lock acquired", zap.String("resource_id", rid), zap.String("conn_id", c.ID), zap.String("username", c.Username))
		s.broadcast(s.router.AudienceFor(m.Key.Scope, c.ID, false), types.EvtLockChanged, types.LockChanged{
			ResourceID: rid,
			Locked:     true,
			ClientID:   c.ID,
			Username:   c.Username,
			Timestamp:  s.stamp(),
		})
		s.reply(c.ID, types.EvtLockResponse, types.LockResponse{ResourceID: rid, Success: true})

	case l.Holder == c.ID:
		metrics.LockRequests.WithLabelValues("refreshed").Inc()
		s.locks.Touch(m.Key, c.ID)
		s.reply(c.ID, types.EvtLockResponse, types.LockResponse{ResourceID: rid, Success: true})

	default:
		metrics.LockRequests.WithLabelValues("denied").Inc()
		s.log.Info("editing lock denied", zap.String("resource_id", rid), zap.String("conn_id", c.ID), zap.String("holder", l.Holder))
		info := lockInfo(l)
		s.reply(c.ID, types.EvtLockResponse, types.LockResponse{ResourceID: rid, Success: false, LockInfo: &info})
	}
}

func (s *Service) handleEditingStopped(m EditingStopped) {
	if s.locks.Release(m.Key, m.ConnID) {
		metrics.LocksReleased.WithLabelValues("holder").Inc()
		s.log.Info("editing lock released", zap.String("resource_id", m.Key.String()), zap.String("conn_id", m.ConnID))
		s.broadcastUnlock(locks.Lock{Key: m.Key, Holder: m.ConnID}, m.ConnID, "")
	}
	// Always acknowledged: the caller cannot tell "already free" from
	// "expired" and must not wait on either.
	s.reply(m.ConnID, types.EvtUnlockResponse, types.UnlockResponse{ResourceID: m.Key.String(), Success: true})
}

func (s *Service) handleSweep() {
	for _, l := range s.locks.ExpireOlderThan(s.lockTTL) {
		metrics.LocksReleased.WithLabelValues(types.ReasonExpired).Inc()
		s.log.Info("stale editing lock expired",
			zap.String("resource_id", l.Key.String()),
			zap.String("holder", l.Holder),
			zap.Time("refreshed_at", l.RefreshedAt))
		s.broadcastUnlock(l, "", types.ReasonExpired)
	}
}

func (s *Service) handleForceUnlock(m ForceUnlock) {
	l, ok := s.locks.ForceRelease(m.Key)
	if ok {
		metrics.LocksReleased.WithLabelValues(types.ReasonForced).Inc()
		s.log.Warn("editing lock force released", zap.String("resource_id", l.Key.String()), zap.String("holder", l.Holder))
		s.broadcastUnlock(l, "", types.ReasonForced)
	}
	if m.Reply != nil {
		m.Reply <- ok
	}
}

// broadcastUnlock tells the lock's scope the resource is free again. sender,
// when set, is left out of the audience.
func (s *Service) broadcastUnlock(l locks.Lock, sender, reason string) {
	audience := s.router.AudienceFor(l.Key.Scope, sender, sender == "")
	s.broadcast(audience, types.EvtLockChanged, types.LockChanged{
		ResourceID: l.Key.String(),
		Locked:     false,
		Reason:     reason,
		Timestamp:  s.stamp(),
	})
}

func (s *Service) broadcastPresence(terminal, action string, c presence.Connection, includeSender bool) {
	s.broadcast(s.router.TerminalAudience(terminal, c.ID, includeSender), types.EvtPresenceUpdate, types.PresenceUpdate{
		TerminalID: terminal,
		Clients:    s.TerminalClients(terminal),
		Action:     action,
		ClientID:   c.ID,
		Username:   c.Username,
		Timestamp:  s.stamp(),
	})
}

func (s *Service) clientsUpdated() types.ClientsUpdated {
	clients := s.Clients()
	return types.ClientsUpdated{Clients: clients, Count: len(clients)}
}
