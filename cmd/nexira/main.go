// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	interrupts = newInterruptHandler(cancel)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range sigs {
			interrupts.handle(sig)
		}
	}()

	err := rootCmd.ExecuteContext(ctx)
	signal.Stop(sigs)
	cancel()

	if nx != nil {
		nx.close()
	}
	if err != nil {
		reportError(err)
		memguard.SafeExit(exitCode(err))
	}
	memguard.Purge()
}
