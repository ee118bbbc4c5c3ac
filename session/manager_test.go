package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/pkg/metrics"
	"github.com/snow-ghost/probe/session"
)

func TestManager_AddGetRemove(t *testing.T) {
	m := metrics.NewPrometheusMetrics()
	mgr, err := session.NewManager(&session.ManagerConfig{MaxSessions: 4}, nil, m)
	require.NoError(t, err)
	defer mgr.Close()

	s := newSession(t)
	mgr.Add(s)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))

	got, err := mgr.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, []string{s.ID}, mgr.IDs())

	require.NoError(t, mgr.Remove(s.ID))
	_, err = mgr.Get(s.ID)
	assert.ErrorIs(t, err, session.ErrUnknownSession)
	assert.ErrorIs(t, mgr.Remove(s.ID), session.ErrUnknownSession)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsEvicted))

	_, err = s.Execute(context.Background(), entry(t, s, "calc::Add"), core.ArgumentSet{"a": 1, "b": 1})
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestManager_EvictsOldest(t *testing.T) {
	m := metrics.NewPrometheusMetrics()
	mgr, err := session.NewManager(&session.ManagerConfig{MaxSessions: 1}, nil, m)
	require.NoError(t, err)
	defer mgr.Close()

	first, second := newSession(t), newSession(t)
	mgr.Add(first)
	mgr.Add(second)

	assert.Equal(t, 1, mgr.Len())
	_, err = mgr.Get(first.ID)
	assert.ErrorIs(t, err, session.ErrUnknownSession)
	_, err = mgr.Get(second.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsEvicted))

	_, err = first.Execute(context.Background(), entry(t, first, "calc::Add"), core.ArgumentSet{"a": 1, "b": 1})
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestManager_IdleExpiry(t *testing.T) {
	mgr, err := session.NewManager(&session.ManagerConfig{MaxSessions: 4, IdleTTL: 20 * time.Millisecond}, nil, nil)
	require.NoError(t, err)
	defer mgr.Close()

	s := newSession(t)
	mgr.Add(s)
	time.Sleep(50 * time.Millisecond)

	_, err = mgr.Get(s.ID)
	assert.ErrorIs(t, err, session.ErrUnknownSession)
	assert.Equal(t, 0, mgr.Len())
}

func TestManager_CleanupLoop(t *testing.T) {
	mgr, err := session.NewManager(&session.ManagerConfig{
		MaxSessions:     4,
		IdleTTL:         20 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)
	defer mgr.Close()

	mgr.Add(newSession(t))
	assert.Eventually(t, func() bool { return mgr.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestManager_InvalidSize(t *testing.T) {
	_, err := session.NewManager(&session.ManagerConfig{MaxSessions: 0}, nil, nil)
	assert.Error(t, err)
}
