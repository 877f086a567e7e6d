package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"suna-chat/internal/chat"
	"suna-chat/internal/chatsync"
	"suna-chat/internal/remotestore"
)

func testOptions(t *testing.T) rootOptions {
	t.Helper()
	return rootOptions{
		server:    "http://127.0.0.1:1",
		localPath: filepath.Join(t.TempDir(), "local.db"),
		timeout:   time.Second,
	}
}

func guestSession(t *testing.T, d *device, text string) chat.Session {
	t.Helper()
	s := chat.NewSession(time.Now())
	s.Append(chat.Message{Role: chat.RoleUser, Content: text}, time.Now())
	saved, err := d.manager.Save(context.Background(), s)
	require.NoError(t, err)
	return saved
}

func TestDevice_AuthSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)

	d, err := openDevice(ctx, opts)
	require.NoError(t, err)
	assert.False(t, d.signedIn())
	require.NoError(t, d.signIn(ctx, remotestore.Account{
		Token: "tok",
		User:  remotestore.AccountUser{ID: 9, Name: "ada", Email: "ada@example.com"},
	}))
	assert.Equal(t, uint(9), d.manager.UserID())
	require.NoError(t, d.Close())

	reopened, err := openDevice(ctx, opts)
	require.NoError(t, err)
	assert.True(t, reopened.signedIn())
	assert.Equal(t, "ada@example.com", reopened.auth.Email)
	assert.Equal(t, opts.server, reopened.auth.Server)
	assert.Equal(t, uint(9), reopened.manager.UserID())

	require.NoError(t, reopened.signOut(ctx))
	assert.False(t, reopened.signedIn())
	assert.Equal(t, uint(0), reopened.manager.UserID())
	require.NoError(t, reopened.Close())
}

func TestDevice_ResolveByPrefix(t *testing.T) {
	ctx := context.Background()
	d, err := openDevice(ctx, testOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	first := guestSession(t, d, "first question")
	second := guestSession(t, d, "second question")

	got, err := d.resolve(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = d.resolve(ctx, second.ID[:12])
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = d.resolve(ctx, "does-not-exist")
	assert.ErrorIs(t, err, chatsync.ErrSessionNotFound)

	_, err = d.resolve(ctx, "")
	assert.ErrorIs(t, err, chatsync.ErrSessionNotFound)
}

func TestRenderSessions_Structured(t *testing.T) {
	s := chat.NewSession(time.UnixMilli(1_700_000_000_000))
	s.IsPinned = true
	s.Append(chat.Message{Role: chat.RoleUser, Content: "hi"}, time.UnixMilli(1_700_000_000_500))
	rows := toRows([]chat.Session{s}, map[string]bool{s.ID: true})

	var buf bytes.Buffer
	require.NoError(t, renderSessions(&buf, formatJSON, rows))
	var decoded []sessionRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, s.ID, decoded[0].ID)
	assert.True(t, decoded[0].Pinned)
	assert.True(t, decoded[0].Pending)
	assert.Equal(t, 1, decoded[0].Messages)

	buf.Reset()
	require.NoError(t, renderSessions(&buf, formatYAML, rows))
	var fromYAML []sessionRow
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	require.Len(t, fromYAML, 1)
	assert.Equal(t, s.ID, fromYAML[0].ID)
}

func TestRenderSessions_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderSessions(&buf, formatTable, nil))
	assert.Contains(t, buf.String(), "No sessions yet")

	s := chat.NewSession(time.Now())
	s.Title = "Dinner ideas"
	s.Append(chat.Message{Role: chat.RoleUser, Content: "hi"}, time.Now())
	buf.Reset()
	require.NoError(t, renderSessions(&buf, formatTable, toRows([]chat.Session{s}, nil)))
	assert.Contains(t, buf.String(), "Dinner ideas")
	assert.Contains(t, buf.String(), shortID(s.ID))
}

func TestRenderSession_ShowsMessages(t *testing.T) {
	s := chat.NewSession(time.Now())
	s.Append(chat.Message{Role: chat.RoleUser, Content: "line one\nline two"}, time.Now())
	s.Append(chat.Message{Role: chat.RoleBot, Content: "answer", IsFavorite: true}, time.Now())

	var buf bytes.Buffer
	require.NoError(t, renderSession(&buf, formatTable, s))
	out := buf.String()
	assert.Contains(t, out, "    line two")
	assert.Contains(t, out, "[1]")
	assert.Contains(t, out, "answer")

	buf.Reset()
	require.NoError(t, renderSession(&buf, formatJSON, s))
	var view sessionView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "bot", view.Messages[1].Role)
	assert.True(t, view.Messages[1].Favorite)
}

func TestValidFormat(t *testing.T) {
	assert.NoError(t, validFormat("yaml"))
	assert.Error(t, validFormat("xml"))
}

func TestExplain(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{remotestore.ErrForbidden, "belongs to another account"},
		{remotestore.ErrNotFound, "no longer exists"},
		{fmt.Errorf("wrapped: %w", remotestore.ErrUnauthorized), "sign-in expired"},
		{chatsync.ErrInvalidTitle, "title is empty"},
	}
	for _, tt := range tests {
		err := explain("rename", tt.err)
		assert.Contains(t, err.Error(), tt.want)
		assert.Contains(t, err.Error(), "rename failed")
	}
}

func TestRootCmd_HasCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"register", "login", "logout", "list", "show", "send", "rename", "pin", "delete", "fav", "sync", "watch"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
