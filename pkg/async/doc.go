// Package async provides safe concurrent execution primitives for
// background work.
//
// Every helper recovers panics, enforces a timeout and logs failures
// instead of crashing the process.
//
// Run: execute a function synchronously with panic recovery
//
//	err := async.Run(ctx, 5*time.Second, "activity-log", func(ctx context.Context) error {
//		return recorder.Record(ctx, entry)
//	})
//	// a panic comes back as *async.PanicError
//
// SafeGo: the same, in its own goroutine
//
//	async.SafeGo(ctx, log, 5*time.Second, "cache warm", warm)
//
// WorkerPool: a fixed set of workers fed by a bounded queue
//
//	pool := async.NewWorkerPool(ctx, async.PoolConfig{Workers: 4, QueueSize: 256, TaskName: "events"})
//	defer pool.Shutdown(5 * time.Second)
//	err := pool.TrySubmit(task) // ErrQueueFull when saturated
package async
