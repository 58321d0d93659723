package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/soheilhy/cmux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/chirino/chat-store/internal/config"
)

// startManagementServer serves handler on cfg.ManagementPort. Plaintext
// HTTP/1.1 and h2c are always served; with cfg.ManagementTLS, TLS connections
// on the same port are split off by cmux. Returns the bound address and a
// shutdown function.
func startManagementServer(cfg *config.Config, handler http.Handler) (net.Addr, func(context.Context) error, error) {
	baseLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ManagementPort))
	if err != nil {
		return nil, nil, fmt.Errorf("management listen failed: %w", err)
	}

	muxer := cmux.New(baseLis)
	var tlsLis net.Listener
	if cfg.ManagementTLS {
		tlsLis = muxer.Match(cmux.TLS())
	}
	plainLis := muxer.Match(cmux.Any())

	plainServer := &http.Server{
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	go func() {
		if err := plainServer.Serve(plainLis); err != nil && err != http.ErrServerClosed && err != cmux.ErrListenerClosed {
			log.Error("management plaintext server failed", "err", err)
		}
	}()

	var tlsServer *http.Server
	if cfg.ManagementTLS {
		cert, err := loadServerCertificate(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			_ = baseLis.Close()
			return nil, nil, err
		}
		tlsWrapped := tls.NewListener(tlsLis, &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		})
		tlsServer = &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		}
		go func() {
			if err := tlsServer.Serve(tlsWrapped); err != nil && err != http.ErrServerClosed && err != cmux.ErrListenerClosed {
				log.Error("management tls server failed", "err", err)
			}
		}()
	}

	go func() {
		if err := muxer.Serve(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Error("management mux failed", "err", err)
		}
	}()

	var closeOnce sync.Once
	closeFn := func(ctx context.Context) error {
		var shutdownErr error
		closeOnce.Do(func() {
			if err := plainServer.Shutdown(ctx); err != nil && err != context.Canceled {
				shutdownErr = err
			}
			if tlsServer != nil {
				if err := tlsServer.Shutdown(ctx); err != nil && err != context.Canceled && shutdownErr == nil {
					shutdownErr = err
				}
			}
			_ = baseLis.Close()
		})
		return shutdownErr
	}

	log.Info("Management server listening", "addr", baseLis.Addr(), "tls", cfg.ManagementTLS)
	return baseLis.Addr(), closeFn, nil
}
