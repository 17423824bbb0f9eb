// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the serialized event loop every connection callback runs on: one goroutine, tasks in post order, deferred teardown after the current task returns.
package reactor
