// Package htmlfwd keeps persistent WebSocket connections from a client
// process to a set of remote htmlfwd hosts and reports their state to any
// number of attached observers.
//
// Each configured endpoint is managed by a small state machine:
//
//   - a dropped or failed connection is retried after a geometric backoff
//     (10s doubling up to 10m), reset by a successful open
//   - a remote that announces KeepAliveInterval is watched by a watchdog;
//     missing heartbeats force an immediate reconnect
//   - only an explicit disconnect leaves an endpoint Disconnected
//
// Observers attach as sessions. A new session is sent a full reload frame
// and then receives positional update frames as endpoints change. Sessions
// drive the client with connect, disconnect and reload commands.
//
// Basic usage:
//
//	client, err := htmlfwd.NewClient(htmlfwd.Config{
//	    Endpoints: []htmlfwd.EndpointSpec{{Label: "devbox", Host: "devbox:8888"}},
//	}, htmlfwd.LogErrors(logrus.StandardLogger()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.Handle(htmlfwd.DirectiveOpenURL, func(d *htmlfwd.Directive) error {
//	    return browser.Open(d.URL)
//	})
//
//	http.Handle("/observe", client.ObserverHandler())
//	go http.ListenAndServe("127.0.0.1:8890", nil)
//
//	if err := client.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// All endpoint, registry and observer state is owned by a single event
// loop. Transport callbacks, timer firings and observer commands are
// queued onto it and run one at a time.
package htmlfwd
