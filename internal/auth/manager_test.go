package auth_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tweetscout/tweetscout/api/types"
	"github.com/tweetscout/tweetscout/internal/auth"
	"github.com/tweetscout/tweetscout/internal/bridge"
	"github.com/tweetscout/tweetscout/internal/stats"
	"github.com/tweetscout/tweetscout/internal/store"
)

// statCount polls a collector counter; stat updates land asynchronously.
func statCount(c *stats.StatsCollector, identity string, typ stats.StatType) func() uint {
	return func() uint {
		c.Stats.Lock()
		defer c.Stats.Unlock()
		return c.Stats.Stats[identity][typ]
	}
}

var _ = Describe("Manager", func() {
	var (
		ctx       context.Context
		st        store.Store
		stub      *bridge.Stub
		collector *stats.StatsCollector
		manager   *auth.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		st, err = store.NewSQLiteStore(filepath.Join(GinkgoT().TempDir(), "auth.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(st.Close)

		Expect(st.UpsertIdentity(ctx, &types.Identity{Username: "alice"})).To(Succeed())

		stub = &bridge.Stub{}
		collector = stats.StartCollector(32)
		manager = auth.NewManager(st, stub, collector, 5*time.Second)
	})

	Describe("Guest", func() {
		It("generates a key on first use and caches it", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]string{"guestKey": "gk-1"}), nil
			}

			key, err := manager.Guest(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("gk-1"))

			key, err = manager.Guest(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("gk-1"))
			Expect(stub.CallCount(bridge.OpGenerateGuestKey)).To(Equal(1))

			identity, err := st.GetIdentity(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.GuestKey).To(Equal("gk-1"))
			Expect(identity.GuestKeyCreatedAt).NotTo(BeNil())
		})

		It("counts only generations, not cache hits", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]string{"guestKey": "gk-1"}), nil
			}

			for i := 0; i < 3; i++ {
				_, err := manager.Guest(ctx, "alice")
				Expect(err).NotTo(HaveOccurred())
			}

			Eventually(statCount(collector, "alice", stats.GuestKeysIssued)).Should(Equal(uint(1)))
			Consistently(statCount(collector, "alice", stats.GuestKeysIssued), "100ms").Should(Equal(uint(1)))
		})

		It("generates exactly one key under concurrent first use", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				time.Sleep(20 * time.Millisecond)
				return bridge.OkResponse(map[string]string{"guestKey": "gk-race"}), nil
			}

			var wg sync.WaitGroup
			keys := make([]string, 10)
			errs := make([]error, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					keys[i], errs[i] = manager.Guest(ctx, "alice")
				}(i)
			}
			wg.Wait()

			for i := 0; i < 10; i++ {
				Expect(errs[i]).NotTo(HaveOccurred())
				Expect(keys[i]).To(Equal("gk-race"))
			}
			Expect(stub.CallCount(bridge.OpGenerateGuestKey)).To(Equal(1))
		})

		It("regenerates after invalidation", func() {
			generation := 0
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				generation++
				return bridge.OkResponse(map[string]string{"guestKey": fmt.Sprintf("gk-%d", generation)}), nil
			}

			key, err := manager.Guest(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("gk-1"))

			Expect(manager.InvalidateGuest(ctx, "alice")).To(Succeed())

			key, err = manager.Guest(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("gk-2"))
		})

		It("fails for an unknown identity", func() {
			_, err := manager.Guest(ctx, "nobody")
			Expect(err).To(MatchError(store.ErrNotFound))
			Expect(stub.Calls()).To(BeEmpty())
		})

		It("surfaces upstream failure without persisting anything", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.FailResponse("rate_limit", "too many key requests"), nil
			}

			_, err := manager.Guest(ctx, "alice")
			var upstream *types.UpstreamError
			Expect(err).To(BeAssignableToTypeOf(upstream))

			identity, err := st.GetIdentity(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.GuestKey).To(BeEmpty())
		})
	})

	Describe("SetApiKey", func() {
		It("persists a credential that passes the probe", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				Expect(req.Operation).To(Equal(bridge.OpValidateApiKey))
				Expect(req.Credential.ApiKey).To(Equal("key-good"))
				return bridge.OkResponse(map[string]any{"valid": true, "username": "alice"}), nil
			}

			Expect(manager.SetApiKey(ctx, "alice", "key-good")).To(Succeed())

			identity, err := st.GetIdentity(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.ApiKey).To(Equal("key-good"))
			Expect(identity.ApiKeyValid).To(BeTrue())
			Expect(identity.AuthMode()).To(Equal(types.AuthModeUser))

			Eventually(statCount(collector, "alice", stats.AuthProbes)).Should(Equal(uint(1)))
		})

		It("rejects a credential the provider refuses and keeps prior state", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]any{"valid": true}), nil
			}
			Expect(manager.SetApiKey(ctx, "alice", "key-old")).To(Succeed())

			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]any{"valid": false, "message": "revoked"}), nil
			}

			err := manager.SetApiKey(ctx, "alice", "key-new")
			var authErr *types.AuthError
			Expect(err).To(BeAssignableToTypeOf(authErr))
			Expect(err.(*types.AuthError).Kind).To(Equal(types.AuthErrorInvalidCredential))

			identity, err := st.GetIdentity(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.ApiKey).To(Equal("key-old"))
			Expect(identity.ApiKeyValid).To(BeTrue())

			Eventually(statCount(collector, "alice", stats.AuthProbes)).Should(Equal(uint(2)))
			Eventually(statCount(collector, "alice", stats.AuthErrors)).Should(Equal(uint(1)))
		})

		It("rejects an empty credential before spawning anything", func() {
			err := manager.SetApiKey(ctx, "alice", "")
			var validationErr *types.ValidationError
			Expect(err).To(BeAssignableToTypeOf(validationErr))
			Expect(stub.Calls()).To(BeEmpty())
		})

		It("propagates bridge failures distinct from credential rejection", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return nil, &types.BridgeProcessError{Kind: types.BridgeErrorSpawn, Message: "node missing"}
			}

			err := manager.SetApiKey(ctx, "alice", "key-good")
			var bridgeErr *types.BridgeProcessError
			Expect(err).To(BeAssignableToTypeOf(bridgeErr))
		})
	})

	Describe("RemoveApiKey", func() {
		It("demotes the identity back to guest mode", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]any{"valid": true}), nil
			}
			Expect(manager.SetApiKey(ctx, "alice", "key-good")).To(Succeed())

			Expect(manager.RemoveApiKey(ctx, "alice")).To(Succeed())

			identity, err := st.GetIdentity(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(identity.ApiKey).To(BeEmpty())
			Expect(identity.AuthMode()).To(Equal(types.AuthModeGuest))
		})
	})

	Describe("ValidateAll", func() {
		BeforeEach(func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				return bridge.OkResponse(map[string]any{"valid": true}), nil
			}
			for _, name := range []string{"bob", "carol", "dave", "erin"} {
				Expect(st.UpsertIdentity(ctx, &types.Identity{Username: name})).To(Succeed())
			}
			for _, name := range []string{"alice", "bob", "carol", "dave"} {
				Expect(manager.SetApiKey(ctx, name, "key-"+name)).To(Succeed())
			}
			// erin never gets a user credential.
		})

		It("re-probes every credentialed identity and records failures", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				if req.Credential.ApiKey == "key-bob" || req.Credential.ApiKey == "key-dave" {
					return bridge.OkResponse(map[string]any{"valid": false, "message": "revoked"}), nil
				}
				return bridge.OkResponse(map[string]any{"valid": true}), nil
			}

			results, err := manager.ValidateAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))

			outcomes := make(map[string]bool, len(results))
			for _, r := range results {
				outcomes[r.Username] = r.Valid
			}
			Expect(outcomes).To(Equal(map[string]bool{
				"alice": true, "bob": false, "carol": true, "dave": false,
			}))

			bob, err := st.GetIdentity(ctx, "bob")
			Expect(err).NotTo(HaveOccurred())
			Expect(bob.ApiKeyValid).To(BeFalse())
			Expect(bob.ApiKey).To(Equal("key-bob"))
			Expect(bob.AuthMode()).To(Equal(types.AuthModeGuest))

			alice, err := st.GetIdentity(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(alice.ApiKeyValid).To(BeTrue())
		})

		It("keeps sweeping when a probe blows up", func() {
			stub.Handler = func(req bridge.Request) (*bridge.Response, error) {
				if req.Credential.ApiKey == "key-alice" {
					return nil, &types.BridgeProcessError{Kind: types.BridgeErrorAbnormalExit}
				}
				return bridge.OkResponse(map[string]any{"valid": true}), nil
			}

			results, err := manager.ValidateAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))

			for _, r := range results {
				if r.Username == "alice" {
					Expect(r.Valid).To(BeFalse())
					Expect(r.Err).To(HaveOccurred())
				} else {
					Expect(r.Valid).To(BeTrue())
				}
			}
		})
	})
})
