// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

var (
	// ErrStateMismatch means a callback arrived with a state this login did
	// not issue.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrConsentDenied means the user declined, or Google returned an error.
	ErrConsentDenied = errors.New("sign-in was not completed")
)

const callbackPage = `<!doctype html><html><body style="font-family:sans-serif">
<h3>%s</h3><p>You can close this window and return to the terminal.</p></body></html>`

type callbackResult struct {
	code string
	err  error
}

// callbackListener serves the redirect URI until the first valid callback.
type callbackListener struct {
	redirectURL string
	server      *http.Server
	results     chan callbackResult
	once        sync.Once
}

var ginModeOnce sync.Once

// listenCallback binds the redirect address. A redirect URL with port 0 is
// rewritten to the port actually bound.
func listenCallback(redirect, state string) (*callbackListener, error) {
	u, err := url.Parse(redirect)
	if err != nil || u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect uri %q must be an http loopback URL", redirect)
	}
	host := u.Hostname()
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("redirect uri %q must point at a loopback address", redirect)
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	if port == "0" {
		u.Host = net.JoinHostPort(host, strconv.Itoa(ln.Addr().(*net.TCPAddr).Port))
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	ginModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })
	l := &callbackListener{
		redirectURL: u.String(),
		results:     make(chan callbackResult, 1),
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("nexira-auth-callback"))
	router.GET(path, l.handle(state))

	l.server = &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("oauth callback listener stopped", "error", err)
		}
	}()
	slog.Debug("oauth callback listening", "url", l.redirectURL)
	return l, nil
}

func (l *callbackListener) handle(state string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.Query("state")
		if subtle.ConstantTimeCompare([]byte(got), []byte(state)) != 1 {
			// A stray or forged request; keep waiting for the real one.
			slog.Warn("oauth callback with unknown state")
			c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(fmt.Sprintf(callbackPage, "Sign-in failed: "+ErrStateMismatch.Error())))
			return
		}

		if reason := c.Query("error"); reason != "" {
			l.deliver(callbackResult{err: fmt.Errorf("%w: %s", ErrConsentDenied, reason)})
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(callbackPage, "Sign-in cancelled")))
			return
		}
		code := c.Query("code")
		if code == "" {
			l.deliver(callbackResult{err: fmt.Errorf("%w: no authorization code", ErrConsentDenied)})
			c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(fmt.Sprintf(callbackPage, "Sign-in failed")))
			return
		}
		l.deliver(callbackResult{code: code})
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(callbackPage, "Signed in to Nexira")))
	}
}

// deliver keeps only the first result.
func (l *callbackListener) deliver(r callbackResult) {
	l.once.Do(func() { l.results <- r })
}

func (l *callbackListener) wait(ctx context.Context) (string, error) {
	select {
	case r := <-l.results:
		return r.code, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for sign-in: %w", ctx.Err())
	}
}

func (l *callbackListener) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.server.Shutdown(ctx); err != nil {
		slog.Debug("oauth callback shutdown", "error", err)
	}
}
