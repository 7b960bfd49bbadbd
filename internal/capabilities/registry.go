package capabilities

import (
	"golang.org/x/exp/slices"

	"github.com/tweetscout/tweetscout/api/types"
)

// requiredModes maps every bridged operation to the weakest auth mode that
// can run it. Read operations on public data work with a guest key; anything
// that mutates state or touches account-scoped data needs a user credential.
var requiredModes = map[types.Capability]types.AuthMode{
	"tweet_details":            types.AuthModeGuest,
	"user_details_by_username": types.AuthModeGuest,
	"user_timeline":            types.AuthModeGuest,
	"user_replies_timeline":    types.AuthModeGuest,

	"tweet_search":          types.AuthModeUser,
	"tweet_post":            types.AuthModeUser,
	"tweet_unpost":          types.AuthModeUser,
	"tweet_schedule":        types.AuthModeUser,
	"tweet_like":            types.AuthModeUser,
	"tweet_unlike":          types.AuthModeUser,
	"tweet_retweet":         types.AuthModeUser,
	"tweet_unretweet":       types.AuthModeUser,
	"tweet_retweeters":      types.AuthModeUser,
	"tweet_bookmark":        types.AuthModeUser,
	"tweet_unbookmark":      types.AuthModeUser,
	"tweet_stream":          types.AuthModeUser,
	"tweet_media_upload":    types.AuthModeUser,
	"list_tweets":           types.AuthModeUser,
	"list_members":          types.AuthModeUser,
	"user_details_by_id":    types.AuthModeUser,
	"user_follow":           types.AuthModeUser,
	"user_unfollow":         types.AuthModeUser,
	"user_followers":        types.AuthModeUser,
	"user_following":        types.AuthModeUser,
	"user_followed_feed":    types.AuthModeUser,
	"user_recommended_feed": types.AuthModeUser,
	"user_bookmarks":        types.AuthModeUser,
	"user_likes":            types.AuthModeUser,
	"user_media":            types.AuthModeUser,
	"user_highlights":       types.AuthModeUser,
	"user_subscriptions":    types.AuthModeUser,
	"user_notifications":    types.AuthModeUser,
}

// RequiredMode returns the minimum auth mode for an operation. Unknown
// operations get an UnsupportedCapabilityError rather than a silent default
// so that a typo in an operation name never reaches a worker process.
func RequiredMode(op types.Capability) (types.AuthMode, error) {
	mode, ok := requiredModes[op]
	if !ok {
		return types.AuthModeNone, &types.UnsupportedCapabilityError{Operation: op}
	}
	return mode, nil
}

// Supported lists every operation the given mode can execute, sorted for
// stable output.
func Supported(mode types.AuthMode) []types.Capability {
	var ops []types.Capability
	for op, required := range requiredModes {
		if mode.Satisfies(required) {
			ops = append(ops, op)
		}
	}
	slices.Sort(ops)
	return ops
}

// IsSupported reports whether the mode is strong enough for the operation.
func IsSupported(op types.Capability, mode types.AuthMode) bool {
	required, err := RequiredMode(op)
	if err != nil {
		return false
	}
	return mode.Satisfies(required)
}
