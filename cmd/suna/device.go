package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"suna-chat/internal/app"
	"suna-chat/internal/chat"
	"suna-chat/internal/chatsync"
	"suna-chat/internal/config"
	"suna-chat/internal/localstore"
	"suna-chat/internal/outbox"
	"suna-chat/internal/pkg/logger"
	sqliteClient "suna-chat/internal/platform/sqlite"
	"suna-chat/internal/remotestore"
)

// authKey holds the signed-in account next to the session data.
const authKey = "auth"

var errNotSignedIn = errors.New("not signed in; run `suna login` first")

type authRecord struct {
	Token  string `json:"token"`
	UserID uint   `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Server string `json:"server"`
}

// device is one local installation: on-disk store, sync manager and the server client.
type device struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *sql.DB
	backend localstore.Backend
	auth    authRecord
	client  *remotestore.HTTPClient
	manager *chatsync.Manager
}

func openDevice(ctx context.Context, opts rootOptions) (*device, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewFileOnly(opts.logFile, cfg.Log.Level)

	db, err := sqliteClient.Open(ctx, opts.localPath)
	if err != nil {
		return nil, err
	}
	backend, err := localstore.NewSQLiteBackend(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	d := &device{cfg: cfg, log: log, db: db, backend: backend}
	if err := d.loadAuth(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	server := opts.server
	if server == "" {
		server = d.auth.Server
	}
	if server == "" {
		server = defaultServer
	}
	d.auth.Server = server
	d.client = remotestore.NewHTTPClient(server, func() string { return d.auth.Token }, opts.timeout)

	syncOpts := chatsync.Options{
		Debounce:      cfg.Sync.Debounce(),
		RetryDelay:    cfg.Sync.RetryDelay(),
		MaxRetries:    cfg.Sync.MaxRetries,
		DedupWindow:   cfg.Sync.DedupWindow(),
		FlushInterval: cfg.Sync.FlushInterval(),
	}
	d.manager = chatsync.NewManager(
		localstore.NewStore(backend, log.Named("localstore")),
		outbox.New(backend, log.Named("outbox")),
		d.client,
		nil,
		syncOpts,
		log.Named("sync"),
	)
	d.manager.SetUser(d.auth.UserID)
	if err := d.manager.Start(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close flushes debounced pushes before releasing the store.
func (d *device) Close() error {
	var errs []error
	if err := d.manager.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close local store failed: %w", err))
	}
	_ = d.log.Sync()
	return errors.Join(errs...)
}

func (d *device) signedIn() bool {
	return d.auth.Token != "" && d.auth.UserID != 0
}

func (d *device) loadAuth(ctx context.Context) error {
	raw, ok, err := d.backend.Get(ctx, authKey)
	if err != nil {
		return fmt.Errorf("read auth failed: %w", err)
	}
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, &d.auth); err != nil {
		d.log.Warn("discard unreadable auth record", zap.Error(err))
		d.auth = authRecord{}
	}
	return nil
}

// signIn stores the account and switches the sync scope to it.
func (d *device) signIn(ctx context.Context, account remotestore.Account) error {
	d.auth = authRecord{
		Token:  account.Token,
		UserID: account.User.ID,
		Name:   account.User.Name,
		Email:  account.User.Email,
		Server: d.auth.Server,
	}
	raw, err := json.Marshal(d.auth)
	if err != nil {
		return fmt.Errorf("encode auth failed: %w", err)
	}
	if err := d.backend.Set(ctx, authKey, raw); err != nil {
		return fmt.Errorf("save auth failed: %w", err)
	}
	d.manager.SetUser(account.User.ID)
	return nil
}

func (d *device) signOut(ctx context.Context) error {
	if err := d.backend.Delete(ctx, authKey); err != nil {
		return fmt.Errorf("delete auth failed: %w", err)
	}
	d.auth = authRecord{Server: d.auth.Server}
	d.manager.SetUser(0)
	return nil
}

func (d *device) conversation() *app.Conversation {
	return app.NewConversation(d.manager, d.client)
}

// resolve accepts a full session id or a unique prefix of one.
func (d *device) resolve(ctx context.Context, ref string) (chat.Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return chat.Session{}, chatsync.ErrSessionNotFound
	}
	if s, ok := d.manager.Get(ctx, ref); ok {
		return s, nil
	}
	var matches []chat.Session
	for _, s := range d.manager.ListSessions(ctx) {
		if strings.HasPrefix(s.ID, ref) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return chat.Session{}, fmt.Errorf("%w: %s", chatsync.ErrSessionNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return chat.Session{}, fmt.Errorf("session prefix %q is ambiguous (%d matches)", ref, len(matches))
	}
}
