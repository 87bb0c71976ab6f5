// Package stream implements the session log stream client.
//
// A Client keeps one WebSocket connection per session identifier open to
// {scheme}://{host}/ws/logs/{sessionId}, routes every inbound frame through
// a Router, and appends log frames to an injected LogStore in arrival order.
// On an unexpected close it reconnects with exponential backoff until the
// retry ceiling is reached, after which it stays Failed until it is started
// again (typically with a new session identifier).
//
// # Basic Usage
//
//	resolver, _ := endpoint.New(cfg.API, logging.Stream())
//	c := stream.New(resolver,
//	    stream.WithBackoff(stream.Backoff{Base: time.Second, MaxAttempts: 5}),
//	    stream.WithCallbacks(stream.Callbacks{
//	        OnLog: func(id string, e stream.LogEntry) { fmt.Println(id, e.Level, e.Message) },
//	    }),
//	)
//	if err := c.Start(ctx, "abc123"); err != nil {
//	    return err
//	}
//	defer c.Close()
//
// # Frames
//
// Inbound frames are classified before any routing happens:
//
//	pong                                  -> FrameAck (no action)
//	{"type":"connection_established"}     -> FrameHandshake (ready)
//	{"type":"ping"}                       -> FramePing (reply "pong")
//	{"timestamp":..,"level":..,"message":..} -> FrameLog (append)
//	anything else                         -> FrameUnknown (dropped)
//
// Frames that are not valid JSON are logged and discarded; they never close
// the connection.
//
// # Thread Safety
//
// Client methods are safe for concurrent use. Callbacks are invoked from the
// client's run loop goroutine (OnStateChange may also fire from Close), so
// implementations must be thread-safe if they touch shared state.
package stream
