// Package command defines the request, result and future types shared by the
// dispatcher and every front-end protocol.
//
// A Request names a single command and optionally carries a typed value. A
// handler answers it with a Result through a Future, which it may complete
// synchronously or later from any goroutine. The dispatcher owns the wait:
// handlers never see a deadline, and a Future completed after the dispatcher
// has stopped waiting is simply never read.
//
// # Usage
//
//	req := command.NewDoubleRequest("cmd-setpoint-1", 21.5)
//	fut := acceptor.Issue("Setpoint", req)
//
//	res, err := fut.Await(ctx)
//	if err != nil {
//	    // ctx expired before the handler answered
//	}
//
// # Thread Safety
//
// Request and Result are plain values. Future is safe for concurrent use; the
// first Complete wins and later calls are ignored.
package command
