package chatsync

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"suna-chat/internal/chat"
	"suna-chat/internal/eventbus"
)

// LoadAllSessions returns what the user should currently see. Signed-in users get the
// remote sessions (remote wins), except that sessions with unconfirmed local changes keep
// their local copy. Any remote failure falls back to the local contents. Never fails.
//
// The title heuristic only collapses sessions this device has not seen yet; sessions
// already stored locally are never hidden by it.
func (m *Manager) LoadAllSessions(ctx context.Context) []chat.Session {
	userID, local, pending := m.scope()
	if userID == 0 {
		return chat.VisibleSessions(chat.DedupSessions(local.GetAll(ctx), 0, nil))
	}

	remote, err := m.fetchRemote(ctx, userID)
	if err != nil {
		m.log.Warn("remote load failed, using local sessions", zap.Uint("user_id", userID), zap.Error(err))
		return chat.VisibleSessions(chat.DedupSessions(local.GetAll(ctx), 0, nil))
	}

	unconfirmed := make(map[string]struct{})
	for _, entry := range pending.List(ctx) {
		unconfirmed[entry.SessionID] = struct{}{}
	}
	known := make(map[string]struct{})
	localByID := make(map[string]chat.Session)
	for _, s := range local.GetAll(ctx) {
		known[s.ID] = struct{}{}
		if _, ok := unconfirmed[s.ID]; ok || m.isInflight(s.ID) {
			localByID[s.ID] = s
		}
	}

	merged := make([]chat.Session, 0, len(remote)+len(localByID))
	for _, s := range remote {
		if kept, ok := localByID[s.ID]; ok {
			merged = append(merged, kept)
			delete(localByID, s.ID)
			continue
		}
		merged = append(merged, s)
	}
	for _, s := range localByID {
		merged = append(merged, s)
	}
	merged = chat.DedupSessions(merged, m.opts.DedupWindow, known)

	if err := local.ReplaceAll(ctx, merged); err != nil {
		m.log.Warn("write loaded sessions failed", zap.Error(err))
	}
	m.bus.Publish(eventbus.Change{Kind: eventbus.SessionsReloaded, UserID: userID})
	return chat.VisibleSessions(merged)
}

func (m *Manager) fetchRemote(ctx context.Context, userID uint) ([]chat.Session, error) {
	metas, err := m.remote.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := make([]chat.Session, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.LoadConcurrency)
	for i, meta := range metas {
		i, meta := i, meta
		g.Go(func() error {
			messages, err := m.remote.GetMessages(gctx, meta.ID)
			if err != nil {
				return err
			}
			meta.Messages = messages
			sessions[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sessions, nil
}
