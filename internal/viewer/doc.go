// Package viewer presents the terminal in a browser.
//
// Hub implements render.Window. Presented frames are PNG-encoded on the
// hub's own goroutine and pushed to every connected viewer as binary
// websocket messages; a slow viewer only ever sees the latest frame. Key,
// text and resize messages from viewers come back as JSON:
//
//	{"type":"key","key":"enter"}
//	{"type":"text","text":"ls -la"}
//	{"type":"resize","width":1024,"height":768}
//	{"type":"ping"}
//
// Example Usage:
//
//	hub := viewer.NewHub(viewer.Options{Width: 800, Height: 600, OnKey: term.SendKey})
//	go hub.Run(ctx)
//	router.GET("/stream", hub.HandleConnection)
package viewer
