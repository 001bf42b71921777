package workers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"imuabridge/config"
	"imuabridge/workers/handlers"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Nudger is told about every user request, the relay channel reconnects on it
type Nudger interface {
	Nudge(ctx context.Context) error
}

const nudgeTimeout = 10 * time.Second

func nudge(n Nudger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), nudgeTimeout)
				defer cancel()
				if err := n.Nudge(ctx); err != nil {
					log.Debugf("Relay nudge failed: %s", err.Error())
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func NewRouter(api *handlers.API, n Nudger, appDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Options("/*", CORSHeaders)

	// probes are not user activity
	r.Get("/healthcheck", api.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if n != nil {
			r.Use(nudge(n))
		}

		r.Get("/state", api.State)

		r.Get("/chains", api.GetChains)
		r.Get("/chains/{network}", api.GetChain)

		r.Get("/wallet", api.GetWallet)
		r.Post("/wallet/connect", api.ConnectWallet)
		r.Post("/wallet/disconnect", api.DisconnectWallet)
		r.Post("/wallet/switch", api.SwitchNetwork)

		r.Get("/bridge", api.GetBridge)
		r.Post("/bridge", api.SubmitBridge)
		r.Post("/bridge/approve", api.ApproveBridge)
		r.Post("/bridge/confirm", api.ConfirmBridge)
		r.Post("/bridge/cancel", api.CancelBridge)
		r.Post("/bridge/dismiss", api.DismissBridge)

		r.Get("/*", staticApp(appDir))
	})

	return r
}

// staticApp serves the UI bundle, unknown paths and directories fall back to index.html
func staticApp(filesDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := filepath.Join(filesDir, filepath.Clean("/"+r.URL.Path))

		fileInfo, err := os.Stat(filePath)
		if err != nil || fileInfo.IsDir() {
			filePath = filepath.Join(filesDir, "index.html")
			fileInfo, err = os.Stat(filePath)
			if err != nil {
				http.NotFound(w, r)
				return
			}
		}

		file, err := os.Open(filePath)
		if err != nil {
			http.Error(w, "unable to open", http.StatusInternalServerError)
			return
		}
		defer file.Close()

		http.ServeContent(w, r, file.Name(), fileInfo.ModTime(), file)
	}
}

// Worker_HTTP serves until SIGINT/SIGTERM, then shuts down gracefully
func Worker_HTTP(handler http.Handler) {
	log.Printf("Starting HTTP service")

	var server *http.Server

	if config.Config.Server.UseSSL {
		cert, err := tls.LoadX509KeyPair("certchain.pem", "privatekey.pem")
		if err != nil {
			log.Fatalf("error loading TLS key pair: %s", err)
		}
		server = &http.Server{
			Addr:    ":443",
			Handler: handler,
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		}
	} else {
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", config.Config.ListenPort()),
			Handler: handler,
		}
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if config.Config.Server.UseSSL {
			if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				log.Fatalf("error listening to: %s", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("error listening to: %s", err)
			}
		}
	}()
	log.Printf("HTTP service started on %s", server.Addr)

	<-done
	log.Print("HTTP service stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP service shutdown error: %+v", err)
	}
	log.Print("HTTP service shutdown normal")
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Origin, X-Requested-With")
}
