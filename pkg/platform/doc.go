// Package platform provides host facts consumed by trackers: the anonymous client ID,
// screen and viewport geometry, color depth, language and user agent.
package platform
