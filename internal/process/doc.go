// Package process supervises a long-running child process.
//
// The controller uses it to keep the display simulator (garagesim) alive
// next to the door controller. The child runs in its own process group;
// crashes are restarted with a doubling delay that resets once the child
// has been stable for a while, and cancelling the Run context sends
// SIGTERM, then SIGKILL after the graceful timeout.
//
//	mgr := process.NewManager(process.Config{
//	    Name:             "garagesim",
//	    Binary:           "garagesim",
//	    RestartOnFailure: true,
//	})
//	mgr.SetLogger(log)
//	g.Go(func() error { return mgr.Run(ctx) })
package process
