package google

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultCallbackAddr is the loopback address the redirect URI points at.
	DefaultCallbackAddr = "127.0.0.1:3847"
	// DefaultCallbackPath is the path component of the redirect URI.
	DefaultCallbackPath = "/auth/callback"
	// CallbackTimeout is how long to wait for the OAuth callback.
	CallbackTimeout = 5 * time.Minute

	maxCallbackHeaderBytes = 8 << 10
)

// CallbackResult is what the browser redirect delivered.
type CallbackResult struct {
	Code  string
	State string
}

type callbackOutcome struct {
	result CallbackResult
	err    error
}

// CallbackListener receives exactly one OAuth redirect on a loopback port.
type CallbackListener struct {
	path    string
	timeout time.Duration

	ln      net.Listener
	srv     *http.Server
	results chan callbackOutcome
}

// ListenCallback binds addr and starts serving the callback path. The
// caller must call Wait (or Close) to release the port.
func ListenCallback(addr, path string) (*CallbackListener, error) {
	if addr == "" {
		addr = DefaultCallbackAddr
	}
	if path == "" {
		path = DefaultCallbackPath
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	l := &CallbackListener{
		path:    path,
		timeout: CallbackTimeout,
		ln:      ln,
		results: make(chan callbackOutcome, 1),
	}
	l.srv = &http.Server{
		Handler:           http.HandlerFunc(l.handle),
		MaxHeaderBytes:    maxCallbackHeaderBytes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ [OAuth] Callback server error: %v", err)
		}
	}()
	log.Printf("[OAuth] Callback server listening on %s%s", ln.Addr(), path)
	return l, nil
}

// Addr returns the bound address.
func (l *CallbackListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Wait blocks until the redirect arrives, the provider reports an error, the
// timeout elapses or ctx is done. The server is closed before returning.
func (l *CallbackListener) Wait(ctx context.Context) (CallbackResult, error) {
	defer l.Close()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case out := <-l.results:
		return out.result, out.err
	case <-timer.C:
		log.Printf("⏰ [OAuth] Callback timeout after %v", l.timeout)
		return CallbackResult{}, ErrOAuthTimeout
	case <-ctx.Done():
		return CallbackResult{}, ctx.Err()
	}
}

// Close drops the listener and any open connection without a graceful
// shutdown. It is safe to call more than once.
func (l *CallbackListener) Close() error {
	return l.srv.Close()
}

func (l *CallbackListener) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != l.path {
		writeCallbackPage(w, http.StatusNotFound, notFoundPage)
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("code") != "":
		writeCallbackPage(w, http.StatusOK, successPage)
		l.deliver(callbackOutcome{result: CallbackResult{Code: q.Get("code"), State: q.Get("state")}})
	case q.Get("error") != "":
		providerErr := q.Get("error")
		writeCallbackPage(w, http.StatusBadRequest, errorPage(providerErr))
		l.deliver(callbackOutcome{err: fmt.Errorf("%w: %s", ErrOAuthCallback, providerErr)})
	default:
		writeCallbackPage(w, http.StatusNotFound, notFoundPage)
	}
}

// deliver keeps the first terminal outcome; later redirects are answered but
// otherwise ignored.
func (l *CallbackListener) deliver(out callbackOutcome) {
	select {
	case l.results <- out:
	default:
	}
}
