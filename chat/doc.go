// Package chat connects to a Twitch channel over IRC and turns its traffic
// into pipeline events.
//
// Source.Run joins TWITCH_CHANNEL and forwards every PRIVMSG as a comment
// (identity is the sender's login) and the first ROOMSTATE after each
// connect as a connect event. Dropped connections are retried with
// exponential backoff until the context is cancelled.
//
// Credentials: with TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN the client logs
// in as the bot and SayInjector can post responses into the channel; without
// them it joins anonymously and can only read.
package chat
