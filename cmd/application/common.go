package main

import "time"

// shutdownTimeout bounds how long coordinator/worker graceful shutdown
// waits for in-flight work to drain.
const shutdownTimeout = 5 * time.Second
