package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/auth"
	"github.com/LJMStark/outku3-sub001/internal/config"
	"github.com/LJMStark/outku3-sub001/internal/gcal"
	"github.com/LJMStark/outku3-sub001/internal/gtasks"
	"github.com/LJMStark/outku3-sub001/internal/httpx"
	"github.com/LJMStark/outku3-sub001/internal/outbox"
	"github.com/LJMStark/outku3-sub001/internal/profile"
	"github.com/LJMStark/outku3-sub001/internal/refresh"
	"github.com/LJMStark/outku3-sub001/internal/store"
	"github.com/LJMStark/outku3-sub001/internal/syncer"
)

// app bundles the wired-up services a command needs. Commands open only
// what they use through the open* helpers; Close releases whatever was
// opened.
type app struct {
	cfg    *config.Config
	userID string

	store   *store.Store
	tokens  *auth.Provider
	client  *httpx.Client
	spool   *outbox.Outbox
	profile *profile.Store
}

func newApp() (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfigDir != "" {
		cfg, err = config.LoadFrom(flagConfigDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagUser != "" {
		cfg.Profile.UserID = flagUser
	}

	a := &app{
		cfg:    cfg,
		userID: cfg.Profile.UserID,
		client: httpx.New(),
	}
	a.tokens = auth.NewProvider(auth.Config{
		TokenURL:     cfg.Auth.TokenURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		ExpiryBuffer: cfg.Auth.ExpiryBuffer,
	}, auth.NewFileStore(cfg.DataDir), quietLogger())
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: closing store: %v\n", err)
		}
	}
}

func (a *app) openStore() (*store.Store, error) {
	if a.store == nil {
		s, err := store.Open(filepath.Join(a.cfg.DataDir, "outku.db"))
		if err != nil {
			return nil, err
		}
		a.store = s
	}
	return a.store, nil
}

func (a *app) openOutbox() (*outbox.Outbox, error) {
	if a.spool == nil {
		spool, err := outbox.New(filepath.Join(a.cfg.DataDir, "outbox"), a.cfg.Sync.OutboxMaxRetries)
		if err != nil {
			return nil, err
		}
		a.spool = spool
	}
	return a.spool, nil
}

func (a *app) profileStore() *profile.Store {
	if a.profile == nil {
		a.profile = profile.NewStore(a.client, a.tokens, profile.Config{
			BaseURL: a.cfg.Profile.BaseURL,
			APIKey:  a.cfg.Profile.APIKey,
		})
	}
	return a.profile
}

func (a *app) calendarGateway() *gcal.Gateway {
	return gcal.NewGateway(a.client, a.tokens, gcal.Config{
		BaseURL:    a.cfg.Calendar.BaseURL,
		MaxResults: a.cfg.Calendar.MaxResults,
		PageCap:    a.cfg.Sync.PageCap,
	}, quietLogger())
}

func (a *app) tasksGateway() *gtasks.Gateway {
	return gtasks.NewGateway(a.client, a.tokens, gtasks.Config{
		BaseURL:    a.cfg.Tasks.BaseURL,
		MaxResults: a.cfg.Tasks.MaxResults,
		PageCap:    a.cfg.Sync.PageCap,
	}, quietLogger())
}

func (a *app) refresher() (*refresh.Service, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	gateway := a.calendarGateway()
	cfg := refresh.Config{
		WindowPast:   time.Duration(a.cfg.Sync.WindowPastDays) * 24 * time.Hour,
		WindowFuture: time.Duration(a.cfg.Sync.WindowFutureDays) * 24 * time.Hour,
	}
	return refresh.NewService(
		gcal.NewAggregator(gateway, quietLogger()),
		gateway,
		gtasks.NewAggregator(a.tasksGateway(), quietLogger()),
		s,
		cfg,
		quietLogger(),
	), nil
}

func (a *app) coordinator() (*syncer.Coordinator, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return syncer.New(s, a.profileStore(), quietLogger()), nil
}

// quietLogger keeps service warnings visible without timestamps cluttering
// interactive output.
func quietLogger() *log.Logger {
	return log.New(os.Stderr, "", 0)
}
