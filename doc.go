// Package argwait sequences asynchronous completions on a single-goroutine
// event loop.
//
// Operations reserve positional arguments of the current stage (Arg, Group,
// Pass), Then attaches the continuation that receives them, and every error
// reported by a completion handle goes to the handlers queued with Error.
// Wait queues finalizers for the moment the whole workflow has drained.
//
//	loop := argwait.NewLoop()
//	defer loop.Close()
//
//	c := argwait.New(loop)
//	loop.Go(readConfig, c.Arg())
//	loop.Go(readUsers, c.Arg())
//	c.Then(func(args argwait.Args) error {
//		cfg, users := args[0], args[1]
//		...
//	})
//	c.Error(func(err error) error { ... })
//	err := loop.Run(ctx)
package argwait
