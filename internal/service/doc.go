// Package service ties discovery, analysis, the connection lifecycle and the
// data relay together behind Engine.
//
// Engine.Run keeps everything current: it refreshes profiles and rebuilds the
// compatibility map on a timer or on request, and reconciles existing
// connections after each rebuild. State changes are published on an EventBus
// for the SSE hub.
package service
