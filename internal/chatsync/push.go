package chatsync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"suna-chat/internal/chat"
	"suna-chat/internal/eventbus"
	"suna-chat/internal/remotestore"
)

// schedulePush pushes immediately unless the session was pushed less than Debounce ago, in
// which case a single deferred push is armed. Deferred pushes read the latest local copy, so
// saves made while the timer is armed are carried by it.
func (m *Manager) schedulePush(ctx context.Context, job pushJob) {
	id := job.snapshot.ID
	m.pushMu.Lock()
	if _, armed := m.timers[id]; armed {
		m.timerJobs[id] = job
		m.pushMu.Unlock()
		return
	}
	now := m.now()
	last, seen := m.lastPush[id]
	if !seen || m.opts.Debounce == 0 || now.Sub(last) >= m.opts.Debounce {
		m.lastPush[id] = now
		m.pushMu.Unlock()
		m.enqueue(ctx, job)
		return
	}
	wait := m.opts.Debounce - now.Sub(last)
	m.timerJobs[id] = job
	m.inflight[id]++
	m.timers[id] = time.AfterFunc(wait, func() { m.fireTimer(id) })
	m.pushMu.Unlock()
}

func (m *Manager) fireTimer(id string) {
	m.pushMu.Lock()
	job, ok := m.timerJobs[id]
	if _, armed := m.timers[id]; !armed || !ok {
		m.pushMu.Unlock()
		return
	}
	delete(m.timers, id)
	delete(m.timerJobs, id)
	m.releaseLocked(id)
	m.lastPush[id] = m.now()
	m.pushMu.Unlock()

	m.enqueue(context.Background(), job)
}

// enqueue hands job to the worker, or runs it inline when the worker is not running.
// After Close the session is recorded as pending instead.
func (m *Manager) enqueue(ctx context.Context, job pushJob) {
	id := job.snapshot.ID
	m.pushMu.Lock()
	if m.closed {
		m.pushMu.Unlock()
		m.deferToOutbox(job, ErrClosed)
		return
	}
	m.inflight[id]++
	if !m.started {
		m.pushMu.Unlock()
		_ = m.execute(ctx, job)
		m.release(id)
		return
	}
	for i := range m.queue {
		if m.queue[i].snapshot.ID == id && m.queue[i].userID == job.userID {
			m.queue[i] = job
			m.releaseLocked(id)
			m.pushMu.Unlock()
			return
		}
	}
	m.queue = append(m.queue, job)
	m.pushMu.Unlock()
	m.signal()
}

func (m *Manager) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Manager) runWorker() {
	defer m.workerWG.Done()
	for {
		job, ok, done := m.nextJob()
		if ok {
			_ = m.execute(m.runCtx, job)
			m.release(job.snapshot.ID)
			continue
		}
		if done {
			return
		}
		select {
		case <-m.notify:
		case <-m.runCtx.Done():
			m.abandonQueue()
			return
		}
	}
}

func (m *Manager) nextJob() (pushJob, bool, bool) {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()
	if len(m.queue) > 0 {
		job := m.queue[0]
		m.queue = m.queue[1:]
		return job, true, false
	}
	return pushJob{}, false, m.closed
}

func (m *Manager) abandonQueue() {
	m.pushMu.Lock()
	jobs := m.queue
	m.queue = nil
	for _, job := range jobs {
		m.releaseLocked(job.snapshot.ID)
	}
	m.pushMu.Unlock()
	for _, job := range jobs {
		m.deferToOutbox(job, context.Canceled)
	}
}

func (m *Manager) deferToOutbox(job pushJob, cause error) {
	ctx := context.Background()
	if _, err := m.pending.WithScope(job.userID).Add(ctx, job.snapshot.ID, cause); err != nil {
		m.log.Error("record pending session failed", zap.String("session_id", job.snapshot.ID), zap.Error(err))
		return
	}
	m.bus.Publish(eventbus.Change{Kind: eventbus.SyncPending, SessionID: job.snapshot.ID, UserID: job.userID})
}

// cancelPush drops armed and queued pushes for id.
func (m *Manager) cancelPush(id string) {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()
	if t, ok := m.timers[id]; ok && t.Stop() {
		delete(m.timers, id)
		delete(m.timerJobs, id)
		m.releaseLocked(id)
	}
	delete(m.lastPush, id)
	kept := m.queue[:0]
	for _, job := range m.queue {
		if job.snapshot.ID == id {
			m.releaseLocked(id)
			continue
		}
		kept = append(kept, job)
	}
	m.queue = kept
}

func (m *Manager) isInflight(id string) bool {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()
	return m.inflight[id] > 0
}

func (m *Manager) release(id string) {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()
	m.releaseLocked(id)
}

func (m *Manager) releaseLocked(id string) {
	if m.inflight[id] <= 1 {
		delete(m.inflight, id)
		return
	}
	m.inflight[id]--
}

// pushIfPending re-sends a session that still has unconfirmed changes.
func (m *Manager) pushIfPending(ctx context.Context, userID uint, session chat.Session) {
	if m.pending.WithScope(userID).Has(ctx, session.ID) {
		m.enqueue(ctx, pushJob{userID: userID, snapshot: session})
	}
}

func (m *Manager) execute(ctx context.Context, job pushJob) error {
	m.execMu.Lock()
	defer m.execMu.Unlock()
	return m.push(ctx, job)
}

func (m *Manager) push(ctx context.Context, job pushJob) error {
	id := job.snapshot.ID
	local := m.local.WithScope(job.userID)
	pending := m.pending.WithScope(job.userID)
	// Outbox bookkeeping must survive a cancelled push.
	bookCtx := context.WithoutCancel(ctx)

	session, ok := local.Get(ctx, id)
	if !ok || session.UpdatedAt < job.snapshot.UpdatedAt {
		session, ok = job.snapshot, job.snapshot.HasMessages()
	}
	if !ok || !session.HasMessages() {
		_ = pending.Remove(bookCtx, id)
		return nil
	}

	wasPending := pending.Has(ctx, id)
	err := m.withRetry(ctx, func(ctx context.Context) error {
		return m.pushOnce(ctx, job.userID, session)
	})
	switch {
	case err == nil:
		if wasPending {
			if err := pending.Remove(bookCtx, id); err != nil {
				m.log.Warn("clear pending session failed", zap.String("session_id", id), zap.Error(err))
			}
			m.bus.Publish(eventbus.Change{Kind: eventbus.SyncConfirmed, SessionID: id, UserID: job.userID})
		}
		return nil
	case remotestore.IsTransient(err) || ctx.Err() != nil:
		entry, addErr := pending.Add(bookCtx, id, err)
		if addErr != nil {
			m.log.Error("record pending session failed", zap.String("session_id", id), zap.Error(addErr))
			return err
		}
		m.log.Warn("remote push failed, session kept pending",
			zap.String("session_id", id),
			zap.Int("attempts", entry.Attempts),
			zap.Error(err),
		)
		m.bus.Publish(eventbus.Change{Kind: eventbus.SyncPending, SessionID: id, UserID: job.userID})
		return err
	default:
		// Rejected and unauthenticated pushes stay pending so a reload keeps the local
		// copy, but only an explicit sync retries them.
		entry, holdErr := pending.Hold(bookCtx, id, err)
		if holdErr != nil {
			m.log.Error("record held session failed", zap.String("session_id", id), zap.Error(holdErr))
			return err
		}
		if errors.Is(err, remotestore.ErrUnauthorized) {
			m.log.Warn("skip remote push, not authenticated", zap.String("session_id", id))
		} else {
			m.log.Error("remote push rejected, session held",
				zap.String("session_id", id),
				zap.Int("attempts", entry.Attempts),
				zap.Error(err),
			)
		}
		m.bus.Publish(eventbus.Change{Kind: eventbus.SyncPending, SessionID: id, UserID: job.userID})
		return err
	}
}

// pushOnce upserts metadata, appends the messages the remote copy lacks and aligns favorites.
func (m *Manager) pushOnce(ctx context.Context, userID uint, session chat.Session) error {
	if err := m.remote.UpsertSession(ctx, session.Meta(), userID); err != nil {
		return err
	}
	have, err := m.remote.GetMessages(ctx, session.ID)
	if err != nil {
		return err
	}
	for _, msg := range chat.MissingMessages(have, session.Messages) {
		if err := m.remote.AppendMessage(ctx, msg, session.ID, userID); err != nil {
			return err
		}
	}

	remoteFavorite := make(map[string]bool, len(have))
	for _, msg := range have {
		remoteFavorite[msg.Key()] = msg.IsFavorite
	}
	for _, msg := range session.Messages {
		fav, ok := remoteFavorite[msg.Key()]
		if !ok || fav == msg.IsFavorite {
			continue
		}
		if err := m.remote.SetFavorite(ctx, session.ID, msg, userID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= m.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(m.opts.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
		err = fn(ctx)
		if err == nil || !remotestore.IsTransient(err) {
			return err
		}
		m.log.Debug("remote push attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return err
}
