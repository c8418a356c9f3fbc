// ABOUTME: Voice state store package
// ABOUTME: Local mirror of guilds, channels, roster and speaking state
// Package voice holds the local mirror of the Discord client's voice state.
//
// The Store is mutated by the RPC client's event handlers and response
// folding, and read by every other component. Rosters are kept unique by
// user id and sorted by (nick, id) after every mutation so that index
// addressing stays stable.
package voice
