package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/tweetscout/tweetscout/api/types"
	"github.com/tweetscout/tweetscout/internal/auth"
	"github.com/tweetscout/tweetscout/internal/bridge"
	"github.com/tweetscout/tweetscout/internal/capabilities"
	"github.com/tweetscout/tweetscout/internal/stats"
	"github.com/tweetscout/tweetscout/internal/store"
)

// nativeOps routes a job type to the in-process scraper instead of a worker
// process.
var nativeOps = map[string]bool{
	NativeSearchByQuery:        true,
	NativeGetByID:              true,
	NativeGetProfileByUsername: true,
	NativeGetTweets:            true,
	NativeGetReplies:           true,
}

// CursoredResult is the normalized shape of paginated bridged operations.
type CursoredResult struct {
	Tweets     []*TweetResult    `json:"tweets,omitempty"`
	Raw        []json.RawMessage `json:"items,omitempty"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// tweetListOps are bridged operations whose list entries are tweets and get
// normalized into TweetResult. Other cursored operations pass entries through
// untouched.
var tweetListOps = map[string]bool{
	"tweet_search":          true,
	"tweet_stream":          true,
	"list_tweets":           true,
	"user_timeline":         true,
	"user_replies_timeline": true,
	"user_followed_feed":    true,
	"user_recommended_feed": true,
	"user_bookmarks":        true,
	"user_likes":            true,
	"user_media":            true,
	"user_highlights":       true,
}

var cursoredOps = map[string]bool{
	"tweet_search":          true,
	"tweet_stream":          true,
	"tweet_retweeters":      true,
	"list_tweets":           true,
	"list_members":          true,
	"user_timeline":         true,
	"user_replies_timeline": true,
	"user_followed_feed":    true,
	"user_recommended_feed": true,
	"user_bookmarks":        true,
	"user_likes":            true,
	"user_media":            true,
	"user_highlights":       true,
	"user_followers":        true,
	"user_following":        true,
	"user_subscriptions":    true,
	"user_notifications":    true,
}

// EnhancedAPI fronts both backends. Native operations run in process; every
// other operation is dispatched to an isolated worker after the identity's
// auth mode is checked against the operation's requirement.
type EnhancedAPI struct {
	native         *NativeScraper
	executor       bridge.Executor
	auth           *auth.Manager
	store          store.Store
	statsCollector *stats.StatsCollector
	defaultTimeout time.Duration
}

func NewEnhancedAPI(jc types.JobConfiguration, c *stats.StatsCollector, st store.Store, executor bridge.Executor) *EnhancedAPI {
	probeTimeout := jc.GetDuration("probe_timeout_seconds", 30)
	return &EnhancedAPI{
		native:         NewNativeScraper(jc, c),
		executor:       executor,
		auth:           auth.NewManager(st, executor, c, probeTimeout),
		store:          st,
		statsCollector: c,
		defaultTimeout: jc.GetDuration("bridge_timeout_seconds", 30),
	}
}

// Auth exposes the credential manager for the command surface.
func (e *EnhancedAPI) Auth() *auth.Manager {
	return e.auth
}

// ExecuteJob runs one operation to completion and returns its result. The
// caller blocks until the backing worker finishes or times out.
func (e *EnhancedAPI) ExecuteJob(ctx context.Context, j types.Job) (types.JobResult, error) {
	if j.Type == "" {
		return types.JobResult{}, &types.ValidationError{Field: "type", Message: "must not be empty"}
	}
	if j.Timeout <= 0 {
		j.Timeout = e.defaultTimeout
	}

	if nativeOps[j.Type] {
		return e.executeNative(ctx, j)
	}
	return e.executeBridged(ctx, j)
}

func (e *EnhancedAPI) executeNative(ctx context.Context, j types.Job) (types.JobResult, error) {
	ctx, cancel := context.WithTimeout(ctx, j.Timeout)
	defer cancel()

	var args struct {
		Query    string `json:"query"`
		ID       string `json:"id"`
		Username string `json:"username"`
		Count    int    `json:"count"`
		Cursor   string `json:"cursor"`
	}
	if err := j.Arguments.Unmarshal(&args); err != nil {
		return types.JobResult{}, &types.ValidationError{Field: "arguments", Message: err.Error()}
	}
	if args.Count <= 0 {
		args.Count = 10
	}

	var data any
	var err error
	switch j.Type {
	case NativeSearchByQuery:
		if args.Query == "" {
			return types.JobResult{}, &types.ValidationError{Field: "query", Message: "must not be empty"}
		}
		data, err = e.native.SearchByQuery(ctx, j, args.Query, args.Count)
	case NativeGetByID:
		if args.ID == "" {
			return types.JobResult{}, &types.ValidationError{Field: "id", Message: "must not be empty"}
		}
		data, err = e.native.GetByID(j, args.ID)
	case NativeGetProfileByUsername:
		if args.Username == "" {
			return types.JobResult{}, &types.ValidationError{Field: "username", Message: "must not be empty"}
		}
		data, err = e.native.GetProfileByUsername(j, args.Username)
	case NativeGetTweets:
		if args.Username == "" {
			return types.JobResult{}, &types.ValidationError{Field: "username", Message: "must not be empty"}
		}
		var tweets []*TweetResult
		var next string
		tweets, next, err = e.native.GetTweets(ctx, j, args.Username, args.Count, args.Cursor)
		data = &CursoredResult{Tweets: tweets, NextCursor: next}
	case NativeGetReplies:
		if args.ID == "" {
			return types.JobResult{}, &types.ValidationError{Field: "id", Message: "must not be empty"}
		}
		data, err = e.native.GetReplies(j, args.ID, args.Cursor)
	}
	if err != nil {
		return types.JobResult{Error: err.Error()}, err
	}
	return types.JobResult{Data: data}, nil
}

func (e *EnhancedAPI) executeBridged(ctx context.Context, j types.Job) (types.JobResult, error) {
	op := types.Capability(j.Type)
	required, err := capabilities.RequiredMode(op)
	if err != nil {
		return types.JobResult{}, err
	}

	identity, err := e.resolveIdentity(ctx, j.Identity)
	if err != nil {
		return types.JobResult{}, err
	}

	mode := identity.AuthMode()
	if !mode.Satisfies(required) {
		return types.JobResult{}, &types.UnsupportedCapabilityError{Operation: op, Mode: mode}
	}

	credential, err := e.credentialFor(ctx, identity, mode)
	if err != nil {
		return types.JobResult{}, err
	}

	logrus.WithField("job_uuid", j.UUID).Debugf("Dispatching %s to worker as %s", j.Type, identity.Username)
	resp, err := e.executeWithRetry(ctx, identity.Username, bridge.Request{
		Operation:  j.Type,
		Arguments:  j.Arguments,
		Credential: credential,
		Timeout:    j.Timeout,
	})
	if err != nil {
		return types.JobResult{Error: err.Error()}, err
	}
	if !resp.Ok {
		e.statsCollector.Add(identity.Username, stats.BridgeErrors, 1)
		upstreamErr := resp.UpstreamError(j.Type)
		return types.JobResult{Error: upstreamErr.Error()}, upstreamErr
	}
	e.statsCollector.Add(identity.Username, stats.BridgeSuccesses, 1)

	data, err := e.normalize(j.Type, resp)
	if err != nil {
		return types.JobResult{Error: err.Error()}, err
	}
	return types.JobResult{Data: data}, nil
}

// resolveIdentity picks the identity a job runs as. Named identities must
// exist; otherwise an identity holding a valid user credential is preferred
// over a guest-only one.
func (e *EnhancedAPI) resolveIdentity(ctx context.Context, username string) (*types.Identity, error) {
	if username != "" {
		return e.store.GetIdentity(ctx, username)
	}

	identities, err := e.store.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	if len(identities) == 0 {
		return nil, &types.AuthError{
			Kind:    types.AuthErrorMissingCredential,
			Message: "no identities configured",
		}
	}
	for _, identity := range identities {
		if identity.AuthMode() == types.AuthModeUser {
			return identity, nil
		}
	}
	return identities[0], nil
}

// credentialFor builds the wire credential for the identity's mode. A user
// key also serves guest operations, so guest keys are only generated when the
// identity has nothing stronger.
func (e *EnhancedAPI) credentialFor(ctx context.Context, identity *types.Identity, mode types.AuthMode) (bridge.Credential, error) {
	if mode == types.AuthModeUser {
		return bridge.Credential{ApiKey: identity.ApiKey, Proxy: identity.Proxy}, nil
	}

	guestKey, err := e.auth.Guest(ctx, identity.Username)
	if err != nil {
		return bridge.Credential{}, err
	}
	return bridge.Credential{GuestKey: guestKey, Proxy: identity.Proxy}, nil
}

// executeWithRetry runs the bridged call, retrying once when the worker died
// or produced garbage. Timeouts and provider-reported failures never retry.
func (e *EnhancedAPI) executeWithRetry(ctx context.Context, username string, req bridge.Request) (*bridge.Response, error) {
	var resp *bridge.Response

	operation := func() error {
		e.statsCollector.Add(username, stats.BridgeInvocations, 1)
		var err error
		resp, err = e.executor.Execute(ctx, req)
		if err == nil {
			return nil
		}

		var bridgeErr *types.BridgeProcessError
		if errors.As(err, &bridgeErr) {
			if bridgeErr.Kind == types.BridgeErrorTimeout {
				e.statsCollector.Add(username, stats.BridgeTimeouts, 1)
			}
			if bridgeErr.Retryable() {
				logrus.WithError(err).Warnf("Retrying %s after worker failure", req.Operation)
				return err
			}
		}
		return backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 250 * time.Millisecond
	err := backoff.Retry(operation, backoff.WithMaxRetries(expo, 1))
	if err != nil {
		e.statsCollector.Add(username, stats.BridgeErrors, 1)
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Err
		}
		return nil, err
	}
	return resp, nil
}

// normalize converts provider payloads into the backend-neutral shapes.
// Operations without a shared shape pass through as raw JSON.
func (e *EnhancedAPI) normalize(op string, resp *bridge.Response) (any, error) {
	switch {
	case op == "tweet_details":
		var t providerTweet
		if err := resp.Unmarshal(&t); err != nil {
			return nil, &types.BridgeProcessError{
				Kind:    types.BridgeErrorMalformedResponse,
				Message: "tweet payload",
				Err:     err,
			}
		}
		return tweetResultFromProvider(t), nil

	case cursoredOps[op]:
		var page struct {
			List []json.RawMessage `json:"list"`
			Next struct {
				Value string `json:"value"`
			} `json:"next"`
		}
		if err := resp.Unmarshal(&page); err != nil {
			return nil, &types.BridgeProcessError{
				Kind:    types.BridgeErrorMalformedResponse,
				Message: "cursored payload",
				Err:     err,
			}
		}

		result := &CursoredResult{NextCursor: page.Next.Value}
		if !tweetListOps[op] {
			result.Raw = page.List
			return result, nil
		}
		for _, raw := range page.List {
			var t providerTweet
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, &types.BridgeProcessError{
					Kind:    types.BridgeErrorMalformedResponse,
					Message: "tweet list entry",
					Err:     err,
				}
			}
			result.Tweets = append(result.Tweets, tweetResultFromProvider(t))
		}
		return result, nil

	default:
		var raw any
		if err := resp.Unmarshal(&raw); err != nil {
			return nil, &types.BridgeProcessError{
				Kind:    types.BridgeErrorMalformedResponse,
				Message: "payload",
				Err:     err,
			}
		}
		return raw, nil
	}
}

// GetEnhancedCapabilities reports what the identity can do right now.
func (e *EnhancedAPI) GetEnhancedCapabilities(ctx context.Context, username string) (*types.EnhancedCapabilities, error) {
	identity, err := e.resolveIdentity(ctx, username)
	if err != nil {
		return nil, err
	}

	mode := identity.AuthMode()
	return &types.EnhancedCapabilities{
		AuthType:    mode.String(),
		Username:    identity.Username,
		ApiKeyValid: identity.ApiKeyValid,
		Operations:  capabilities.Supported(mode),
	}, nil
}
