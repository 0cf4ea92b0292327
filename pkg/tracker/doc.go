// Package tracker merges per-property defaults into hits.
//
// # Merge Order
//
// Each hit is assembled from four layers, later layers winning:
//
//  1. required: v, tid, cid, an, av
//  2. conditional: aid, aiid, cd, aip, sr, vp, sd, ul, de, uip, ua, geoid (only when set)
//  3. values stored with Set
//  4. the parameters passed to Send
//
// # Usage Example
//
//	t := manager.CreateTracker("UA-12345-1")
//	t.SetScreenName("Home")
//	t.SendEvent("video", "play", "intro", 0)
package tracker
