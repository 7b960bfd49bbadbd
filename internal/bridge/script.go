package bridge

// packageJSON pins the provider library for the bridge working directory.
// Written once; `npm install` is left to EnsureDependencies.
const packageJSON = `{
  "name": "tweetscout-bridge",
  "version": "1.0.0",
  "type": "module",
  "dependencies": {
    "rettiwt-api": "^4.2.0"
  }
}
`

// workerScript is the single-shot Node.js program run per invocation. It
// reads one request object from stdin, performs exactly one operation, writes
// one response object to stdout and exits. Anything diagnostic goes to
// stderr.
const workerScript = `import { Rettiwt, AuthService } from 'rettiwt-api';

async function readRequest() {
	let raw = '';
	for await (const chunk of process.stdin) raw += chunk;
	return JSON.parse(raw);
}

function reply(obj) {
	process.stdout.write(JSON.stringify(obj));
}

function classify(err) {
	const message = err && err.message ? String(err.message) : String(err);
	if (message.includes('TOO_MANY_REQUESTS') || message.includes('429')) return 'rate_limit';
	if (message.includes('UNAUTHORIZED') || message.includes('401')) return 'unauthorized';
	return 'upstream';
}

async function dispatch(rettiwt, req) {
	const args = req.arguments || {};
	switch (req.operation) {
	case 'generate_guest_key': {
		const guestKey = await rettiwt.auth.guest();
		return { guestKey };
	}
	case 'validate_api_key': {
		try {
			const userId = AuthService.getUserId(req.credential.apiKey);
			const user = await rettiwt.user.details({ id: userId });
			return { valid: true, userId, username: user.userName };
		} catch (err) {
			return { valid: false, message: err && err.message ? err.message : String(err) };
		}
	}
	case 'tweet_details':
		return await rettiwt.tweet.details(args.id);
	case 'tweet_search':
		return await rettiwt.tweet.search(args.filter || {}, args.count, args.cursor);
	case 'tweet_stream': {
		const limit = args.count || 20;
		const list = [];
		for await (const tweet of rettiwt.tweet.stream(args.filter || {}, args.pollingInterval)) {
			list.push(tweet);
			if (list.length >= limit) break;
		}
		return { list };
	}
	case 'tweet_post': {
		const id = await rettiwt.tweet.post({ text: args.text });
		return { posted: true, id };
	}
	case 'tweet_unpost':
		return { unposted: await rettiwt.tweet.unpost(args.id), id: args.id };
	case 'tweet_schedule': {
		const id = await rettiwt.tweet.schedule({ text: args.text, scheduleFor: new Date(args.scheduleFor) });
		return { scheduled: true, id, scheduledFor: args.scheduleFor };
	}
	case 'tweet_bookmark':
		return { bookmarked: await rettiwt.tweet.bookmark(args.id), id: args.id };
	case 'tweet_unbookmark':
		return { unbookmarked: await rettiwt.tweet.unbookmark(args.id), id: args.id };
	case 'tweet_like':
		return { liked: await rettiwt.tweet.like(args.id), id: args.id };
	case 'tweet_unlike':
		return { unliked: await rettiwt.tweet.unlike(args.id), id: args.id };
	case 'tweet_retweet':
		return { retweeted: await rettiwt.tweet.retweet(args.id), id: args.id };
	case 'tweet_unretweet':
		return { unretweeted: await rettiwt.tweet.unretweet(args.id), id: args.id };
	case 'tweet_retweeters':
		return await rettiwt.tweet.retweeters(args.id, args.count, args.cursor);
	case 'tweet_media_upload': {
		const id = await rettiwt.tweet.upload(args.path);
		return { uploaded: true, id };
	}
	case 'list_tweets':
		return await rettiwt.list.tweets(args.id, args.count, args.cursor);
	case 'list_members':
		return await rettiwt.list.members(args.id, args.count, args.cursor);
	case 'user_details_by_username':
		return await rettiwt.user.details(args.username);
	case 'user_details_by_id':
		return await rettiwt.user.details({ id: args.id });
	case 'user_timeline':
		return await rettiwt.user.timeline(args.id, args.count, args.cursor);
	case 'user_replies_timeline':
		return await rettiwt.user.replies(args.id, args.count, args.cursor);
	case 'user_bookmarks':
		return await rettiwt.user.bookmarks(args.count, args.cursor);
	case 'user_likes':
		return await rettiwt.user.likes(args.id, args.count, args.cursor);
	case 'user_media':
		return await rettiwt.user.media(args.id, args.count, args.cursor);
	case 'user_followers':
		return await rettiwt.user.followers(args.id, args.count, args.cursor);
	case 'user_following':
		return await rettiwt.user.following(args.id, args.count, args.cursor);
	case 'user_followed_feed':
		return await rettiwt.user.followed(args.count, args.cursor);
	case 'user_recommended_feed':
		return await rettiwt.user.recommended(args.count, args.cursor);
	case 'user_highlights':
		return await rettiwt.user.highlights(args.id, args.count, args.cursor);
	case 'user_subscriptions':
		return await rettiwt.user.subscriptions(args.id, args.count, args.cursor);
	case 'user_follow':
		return { following: await rettiwt.user.follow(args.id), id: args.id };
	case 'user_unfollow':
		return { following: false, unfollowed: await rettiwt.user.unfollow(args.id), id: args.id };
	case 'user_notifications':
		return await rettiwt.user.notifications(args.count, args.cursor);
	default:
		throw new Error('unsupported operation: ' + req.operation);
	}
}

async function main() {
	const req = await readRequest();
	const cred = req.credential || {};
	const conf = {};
	if (cred.apiKey) conf.apiKey = cred.apiKey;
	if (cred.guestKey) conf.guestKey = cred.guestKey;
	if (cred.proxyUrl) conf.proxyUrl = new URL(cred.proxyUrl);
	const rettiwt = new Rettiwt(conf);
	try {
		const data = await dispatch(rettiwt, req);
		reply({ ok: true, data });
	} catch (err) {
		reply({ ok: false, error: { kind: classify(err), message: err && err.message ? err.message : String(err) } });
		process.exit(1);
	}
}

main().catch((err) => {
	process.stderr.write('worker failure: ' + (err && err.stack ? err.stack : String(err)) + '\n');
	process.exit(2);
});
`
