package jobs_test

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tweetscout/tweetscout/api/types"
	"github.com/tweetscout/tweetscout/internal/bridge"
	"github.com/tweetscout/tweetscout/internal/jobs"
	"github.com/tweetscout/tweetscout/internal/stats"
	"github.com/tweetscout/tweetscout/internal/store"
)

// guestKeyHandler serves key generation and delegates everything else.
func guestKeyHandler(next func(bridge.Request) (*bridge.Response, error)) func(bridge.Request) (*bridge.Response, error) {
	return func(req bridge.Request) (*bridge.Response, error) {
		if req.Operation == bridge.OpGenerateGuestKey {
			return bridge.OkResponse(map[string]string{"guestKey": "gk-test"}), nil
		}
		if req.Operation == bridge.OpValidateApiKey {
			return bridge.OkResponse(map[string]any{"valid": true}), nil
		}
		return next(req)
	}
}

var _ = Describe("EnhancedAPI", func() {
	var (
		ctx  context.Context
		st   store.Store
		stub *bridge.Stub
		api  *jobs.EnhancedAPI
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		st, err = store.NewSQLiteStore(filepath.Join(GinkgoT().TempDir(), "jobs.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(st.Close)

		Expect(st.UpsertIdentity(ctx, &types.Identity{Username: "alice"})).To(Succeed())

		stub = &bridge.Stub{}
		jc := types.JobConfiguration{
			"data_dir":               GinkgoT().TempDir(),
			"bridge_timeout_seconds": 5 * time.Second,
			"probe_timeout_seconds":  5 * time.Second,
		}
		api = jobs.NewEnhancedAPI(jc, stats.StartCollector(32), st, stub)
	})

	promote := func(username string) {
		Expect(api.Auth().SetApiKey(ctx, username, "key-"+username)).To(Succeed())
		stub.Reset()
	}

	Describe("validation and routing", func() {
		It("rejects a job without a type", func() {
			_, err := api.ExecuteJob(ctx, types.Job{})
			var validationErr *types.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validationErr))
			Expect(stub.Calls()).To(BeEmpty())
		})

		It("rejects an unknown operation before spawning anything", func() {
			_, err := api.ExecuteJob(ctx, types.Job{Type: "tweet_teleport"})
			var unsupported *types.UnsupportedCapabilityError
			Expect(err).To(BeAssignableToTypeOf(unsupported))
			Expect(stub.Calls()).To(BeEmpty())
		})

		It("rejects a user operation for a guest identity without spawning", func() {
			stub.Handler = guestKeyHandler(func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]any{}), nil
			})

			_, err := api.ExecuteJob(ctx, types.Job{Type: "tweet_post", Arguments: types.JobArguments{"text": "hi"}})
			var unsupported *types.UnsupportedCapabilityError
			Expect(err).To(BeAssignableToTypeOf(unsupported))
			Expect(stub.Calls()).To(BeEmpty())
		})

		It("fails when no identity exists", func() {
			empty, err := store.NewSQLiteStore(filepath.Join(GinkgoT().TempDir(), "empty.db"))
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(empty.Close)

			bare := jobs.NewEnhancedAPI(types.JobConfiguration{"data_dir": GinkgoT().TempDir()}, nil, empty, stub)
			_, err = bare.ExecuteJob(ctx, types.Job{Type: "tweet_details", Arguments: types.JobArguments{"id": "1"}})
			var authErr *types.AuthError
			Expect(err).To(BeAssignableToTypeOf(authErr))
		})
	})

	Describe("guest credential flow", func() {
		It("lazily generates a guest key and reuses it on later calls", func() {
			stub.Handler = guestKeyHandler(func(req bridge.Request) (*bridge.Response, error) {
				Expect(req.Credential.GuestKey).To(Equal("gk-test"))
				Expect(req.Credential.ApiKey).To(BeEmpty())
				return bridge.OkResponse(map[string]any{"id": "777", "fullText": "hello"}), nil
			})

			job := types.Job{Type: "tweet_details", Arguments: types.JobArguments{"id": "777"}}
			_, err := api.ExecuteJob(ctx, job)
			Expect(err).NotTo(HaveOccurred())
			_, err = api.ExecuteJob(ctx, job)
			Expect(err).NotTo(HaveOccurred())

			Expect(stub.CallCount(bridge.OpGenerateGuestKey)).To(Equal(1))
			Expect(stub.CallCount("tweet_details")).To(Equal(2))
		})

		It("uses the user key for guest operations once promoted", func() {
			promote("alice")
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				Expect(req.Credential.ApiKey).To(Equal("key-alice"))
				Expect(req.Credential.GuestKey).To(BeEmpty())
				return bridge.OkResponse(map[string]any{"id": "777", "fullText": "hello"}), nil
			}

			_, err := api.ExecuteJob(ctx, types.Job{Type: "tweet_details", Arguments: types.JobArguments{"id": "777"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(stub.CallCount(bridge.OpGenerateGuestKey)).To(BeZero())
		})
	})

	Describe("retry behavior", func() {
		It("retries exactly once after an abnormal worker exit", func() {
			promote("alice")
			failures := 0
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				failures++
				return nil, &types.BridgeProcessError{Kind: types.BridgeErrorAbnormalExit, Message: "worker crashed"}
			}

			_, err := api.ExecuteJob(ctx, types.Job{Type: "tweet_search", Arguments: types.JobArguments{"filter": map[string]any{"words": []string{"go"}}}})
			var bridgeErr *types.BridgeProcessError
			Expect(err).To(BeAssignableToTypeOf(bridgeErr))
			Expect(stub.CallCount("tweet_search")).To(Equal(2))
		})

		It("recovers when the retry succeeds", func() {
			promote("alice")
			calls := 0
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				calls++
				if calls == 1 {
					return nil, &types.BridgeProcessError{Kind: types.BridgeErrorMalformedResponse}
				}
				return bridge.OkResponse(map[string]any{"list": []any{}, "next": map[string]string{"value": ""}}), nil
			}

			result, err := api.ExecuteJob(ctx, types.Job{Type: "tweet_search", Arguments: types.JobArguments{}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Success()).To(BeTrue())
			Expect(stub.CallCount("tweet_search")).To(Equal(2))
		})

		It("does not retry a timeout", func() {
			promote("alice")
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return nil, &types.BridgeProcessError{Kind: types.BridgeErrorTimeout, Message: "deadline"}
			}

			_, err := api.ExecuteJob(ctx, types.Job{Type: "tweet_search", Arguments: types.JobArguments{}})
			var bridgeErr *types.BridgeProcessError
			Expect(err).To(BeAssignableToTypeOf(bridgeErr))
			Expect(stub.CallCount("tweet_search")).To(Equal(1))
		})

		It("does not retry a provider-reported failure", func() {
			promote("alice")
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.FailResponse("rate_limit", "slow down"), nil
			}

			_, err := api.ExecuteJob(ctx, types.Job{Type: "tweet_search", Arguments: types.JobArguments{}})
			var upstream *types.UpstreamError
			Expect(err).To(BeAssignableToTypeOf(upstream))
			Expect(stub.CallCount("tweet_search")).To(Equal(1))
		})
	})

	Describe("normalization", func() {
		It("converts a bridged tweet into the shared shape", func() {
			promote("alice")
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]any{
					"id":        "1234567890",
					"fullText":  "a tweet",
					"createdAt": "Mon Jan 02 15:04:05 +0000 2023",
					"likeCount": 7,
					"tweetBy":   map[string]any{"id": "42", "userName": "bob"},
				}), nil
			}

			result, err := api.ExecuteJob(ctx, types.Job{Type: "tweet_details", Arguments: types.JobArguments{"id": "1234567890"}})
			Expect(err).NotTo(HaveOccurred())

			var tweet jobs.TweetResult
			Expect(result.Unmarshal(&tweet)).To(Succeed())
			Expect(tweet.ID).To(Equal(int64(1234567890)))
			Expect(tweet.Text).To(Equal("a tweet"))
			Expect(tweet.Likes).To(Equal(7))
			Expect(tweet.Username).To(Equal("bob"))
			Expect(tweet.CreatedAt.Year()).To(Equal(2023))
		})

		It("converts a cursored tweet list with its next cursor", func() {
			promote("alice")
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]any{
					"list": []any{
						map[string]any{"id": "1", "fullText": "one", "createdAt": "Mon Jan 02 15:04:05 +0000 2023"},
						map[string]any{"id": "2", "fullText": "two", "createdAt": "Mon Jan 02 15:05:05 +0000 2023"},
					},
					"next": map[string]string{"value": "cursor-47"},
				}), nil
			}

			result, err := api.ExecuteJob(ctx, types.Job{Type: "user_timeline", Arguments: types.JobArguments{"id": "42"}})
			Expect(err).NotTo(HaveOccurred())

			var page jobs.CursoredResult
			Expect(result.Unmarshal(&page)).To(Succeed())
			Expect(page.Tweets).To(HaveLen(2))
			Expect(page.Tweets[0].Text).To(Equal("one"))
			Expect(page.NextCursor).To(Equal("cursor-47"))
		})
	})

	Describe("GetEnhancedCapabilities", func() {
		It("reports guest operations for an unpromoted identity", func() {
			caps, err := api.GetEnhancedCapabilities(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(caps.AuthType).To(Equal("guest"))
			Expect(caps.ApiKeyValid).To(BeFalse())
			Expect(caps.Operations).To(ContainElement(types.Capability("tweet_details")))
			Expect(caps.Operations).NotTo(ContainElement(types.Capability("tweet_post")))
		})

		It("reports the full set once promoted", func() {
			promote("alice")
			caps, err := api.GetEnhancedCapabilities(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(caps.AuthType).To(Equal("user"))
			Expect(caps.ApiKeyValid).To(BeTrue())
			Expect(caps.Operations).To(ContainElement(types.Capability("tweet_post")))
		})
	})
})
