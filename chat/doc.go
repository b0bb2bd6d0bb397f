// Package chat is the Twitch chat front end for the repost service.
//
// The bot joins TWITCH_CHANNEL and runs one conversation per chat user:
// !repost <url> kicks off a repost, and while it is in flight the pipeline
// can prompt the same user for credentials or a caption. Replies from the
// user are routed to whichever prompt is waiting; !cancel aborts the
// in-flight request and !logout discards the stored login.
//
// Credentials: the IRC client requires a bot username and an OAuth token
// with chat:read/chat:edit scopes.
package chat
