package auth

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tweetscout/tweetscout/api/types"
	"github.com/tweetscout/tweetscout/internal/bridge"
	"github.com/tweetscout/tweetscout/internal/stats"
	"github.com/tweetscout/tweetscout/internal/store"
)

// Manager owns the credential lifecycle for identities. Guest keys are lazily
// generated and cached until invalidated; user keys are probed before they are
// persisted so the store never holds an unverified credential.
type Manager struct {
	store          store.Store
	executor       bridge.Executor
	statsCollector *stats.StatsCollector
	probeTimeout   time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(st store.Store, executor bridge.Executor, c *stats.StatsCollector, probeTimeout time.Duration) *Manager {
	return &Manager{
		store:          st,
		executor:       executor,
		statsCollector: c,
		probeTimeout:   probeTimeout,
		locks:          make(map[string]*sync.Mutex),
	}
}

// identityLock serializes credential work per identity so concurrent callers
// never race to generate the same guest key.
func (m *Manager) identityLock(username string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[username]
	if !ok {
		l = &sync.Mutex{}
		m.locks[username] = l
	}
	return l
}

// Guest returns the identity's guest key, generating and persisting one on
// first use. The store is re-read under the identity lock so that a concurrent
// winner's key is reused instead of overwritten.
func (m *Manager) Guest(ctx context.Context, username string) (string, error) {
	identity, err := m.store.GetIdentity(ctx, username)
	if err != nil {
		return "", err
	}
	if identity.GuestKey != "" {
		return identity.GuestKey, nil
	}

	l := m.identityLock(username)
	l.Lock()
	defer l.Unlock()

	identity, err = m.store.GetIdentity(ctx, username)
	if err != nil {
		return "", err
	}
	if identity.GuestKey != "" {
		return identity.GuestKey, nil
	}

	logrus.Infof("Generating guest key for %s", username)
	resp, err := m.executor.Execute(ctx, bridge.Request{
		Operation: bridge.OpGenerateGuestKey,
		Timeout:   m.probeTimeout,
	})
	if err != nil {
		return "", err
	}
	if !resp.Ok {
		return "", resp.UpstreamError(bridge.OpGenerateGuestKey)
	}

	var data struct {
		GuestKey string `json:"guestKey"`
	}
	if err := resp.Unmarshal(&data); err != nil {
		return "", &types.BridgeProcessError{
			Kind:    types.BridgeErrorMalformedResponse,
			Message: "guest key payload",
			Err:     err,
		}
	}
	if data.GuestKey == "" {
		return "", &types.BridgeProcessError{
			Kind:    types.BridgeErrorMalformedResponse,
			Message: "guest key payload is empty",
		}
	}

	if err := m.store.SetGuestKey(ctx, username, data.GuestKey, time.Now().UTC()); err != nil {
		return "", err
	}
	m.statsCollector.Add(username, stats.GuestKeysIssued, 1)
	return data.GuestKey, nil
}

// InvalidateGuest drops the cached guest key so the next guest-mode call
// generates a fresh one.
func (m *Manager) InvalidateGuest(ctx context.Context, username string) error {
	l := m.identityLock(username)
	l.Lock()
	defer l.Unlock()
	logrus.Infof("Invalidating guest key for %s", username)
	return m.store.ClearGuestKey(ctx, username)
}

// SetApiKey probes the candidate user credential against the provider and
// persists it only on success. A failed probe leaves whatever credential the
// identity already had untouched.
func (m *Manager) SetApiKey(ctx context.Context, username, apiKey string) error {
	if apiKey == "" {
		return &types.ValidationError{Field: "api_key", Message: "must not be empty"}
	}
	if _, err := m.store.GetIdentity(ctx, username); err != nil {
		return err
	}

	l := m.identityLock(username)
	l.Lock()
	defer l.Unlock()

	if err := m.probe(ctx, username, apiKey); err != nil {
		return err
	}
	if err := m.store.SetApiKey(ctx, username, apiKey, time.Now().UTC()); err != nil {
		return err
	}
	logrus.Infof("Stored validated user credential for %s", username)
	return nil
}

// RemoveApiKey drops the user credential, demoting the identity to guest mode.
func (m *Manager) RemoveApiKey(ctx context.Context, username string) error {
	l := m.identityLock(username)
	l.Lock()
	defer l.Unlock()
	logrus.Infof("Removing user credential for %s", username)
	return m.store.ClearApiKey(ctx, username)
}

// probe runs a validation round trip for the credential. Provider-confirmed
// rejection becomes an AuthError; infrastructure failures pass through so the
// caller can tell "bad key" from "bridge down".
func (m *Manager) probe(ctx context.Context, username, apiKey string) error {
	m.statsCollector.Add(username, stats.AuthProbes, 1)
	resp, err := m.executor.Execute(ctx, bridge.Request{
		Operation:  bridge.OpValidateApiKey,
		Credential: bridge.Credential{ApiKey: apiKey},
		Timeout:    m.probeTimeout,
	})
	if err != nil {
		return err
	}
	if !resp.Ok {
		return resp.UpstreamError(bridge.OpValidateApiKey)
	}

	var data struct {
		Valid    bool   `json:"valid"`
		Username string `json:"username"`
		Message  string `json:"message"`
	}
	if err := resp.Unmarshal(&data); err != nil {
		return &types.BridgeProcessError{
			Kind:    types.BridgeErrorMalformedResponse,
			Message: "validation payload",
			Err:     err,
		}
	}
	if !data.Valid {
		m.statsCollector.Add(username, stats.AuthErrors, 1)
		return &types.AuthError{
			Kind:     types.AuthErrorInvalidCredential,
			Username: username,
			Message:  data.Message,
		}
	}
	return nil
}

// ValidationResult is the outcome of re-probing one identity's credential.
type ValidationResult struct {
	Username string `json:"username"`
	Valid    bool   `json:"valid"`
	Err      error  `json:"-"`
}

// ValidateAll re-probes every identity that holds a user credential and
// records the outcome in the store. One identity failing never aborts the
// sweep.
func (m *Manager) ValidateAll(ctx context.Context) ([]ValidationResult, error) {
	identities, err := m.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}

	var results []ValidationResult
	for _, identity := range identities {
		if identity.ApiKey == "" {
			continue
		}
		result := ValidationResult{Username: identity.Username}
		if err := m.probe(ctx, identity.Username, identity.ApiKey); err != nil {
			result.Err = err
			logrus.WithError(err).Warnf("Credential for %s failed validation", identity.Username)
			if markErr := m.store.SetApiKeyValid(ctx, identity.Username, false); markErr != nil {
				logrus.WithError(markErr).Errorf("Failed to mark credential for %s invalid", identity.Username)
			}
		} else {
			result.Valid = true
			if markErr := m.store.SetApiKeyValid(ctx, identity.Username, true); markErr != nil {
				logrus.WithError(markErr).Errorf("Failed to mark credential for %s valid", identity.Username)
			}
		}
		results = append(results, result)
	}
	logrus.Infof("Validated %d user credentials", len(results))
	return results, nil
}
