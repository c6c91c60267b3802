// Package ws connects rendering windows to the controller over WebSocket.
//
// Every window is a browser page that dials /ws?window=<id>. The hub opens
// windows (implementing windows.Launcher), attaches their sockets and routes
// invoke frames through the command router.
//
// Frame Types (Window → Controller):
//   - invoke: call a channel with positional args, answered by result or error
//   - response: answer to a controller request (a native dialog)
//   - ping: keep-alive ping
//
// Frame Types (Controller → Window):
//   - result / error: outcome of an invoke
//   - push: one-way message on a named channel (broadcast relay)
//   - request: ask the page to run a dialog and answer with response
//   - navigate: load another page in the same window
//   - close: the window should close itself
//   - pong: keep-alive reply
//
// A socket that drops is given a short grace period to reconnect, so a page
// that navigates keeps its window identity.
//
// Example Usage:
//
//	hub := ws.NewHub(ws.DefaultOptions(base), router, registry, logger)
//	router.GET("/ws", hub.HandleConnection)
package ws
