package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const actionTimeout = 5 * time.Second

// AHRSController exposes estimator actions to the API.
type AHRSController interface {
	ZeroDrift(ctx context.Context) error
	ResetYaw(ctx context.Context) error
}

// MotorController exposes motor actions to the API.
type MotorController interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	EnterAngleControl(ctx context.Context) error
	ExitAngleControl(ctx context.Context) error
	SetTargetAngle(ctx context.Context, deg float64) error
	Command(ctx context.Context, line string) error
}

// Deps are the services the handler serves. Everything but Status is
// optional; missing controllers answer 404 on their routes.
type Deps struct {
	Status   *Status
	Logs     *LogBuffer
	AHRS     AHRSController
	Motor    MotorController
	Attitude *AttitudeBroadcaster
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, d.Status.Snapshot(time.Now().UTC()))
	})
	mux.HandleFunc("/api/about", aboutHandler)

	ahrsAction := func(fn func(AHRSController, context.Context) error) http.HandlerFunc {
		return action(func(ctx context.Context) error {
			if d.AHRS == nil {
				return errUnavailable("ahrs")
			}
			return fn(d.AHRS, ctx)
		})
	}
	mux.Handle("/api/ahrs/zero-drift", ahrsAction(AHRSController.ZeroDrift))
	mux.Handle("/api/ahrs/reset-yaw", ahrsAction(AHRSController.ResetYaw))

	motorAction := func(fn func(MotorController, context.Context) error) http.HandlerFunc {
		return action(func(ctx context.Context) error {
			if d.Motor == nil {
				return errUnavailable("motor")
			}
			return fn(d.Motor, ctx)
		})
	}
	mux.Handle("/api/motor/enable", motorAction(MotorController.Enable))
	mux.Handle("/api/motor/disable", motorAction(MotorController.Disable))
	mux.Handle("/api/motor/angle-control/enter", motorAction(MotorController.EnterAngleControl))
	mux.Handle("/api/motor/angle-control/exit", motorAction(MotorController.ExitAngleControl))

	mux.HandleFunc("/api/motor/target", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AngleDeg *float64 `json:"angle_deg"`
		}
		if !allowMethod(w, r, http.MethodPost) || !decodeBody(w, r, &req) {
			return
		}
		if req.AngleDeg == nil {
			http.Error(w, "angle_deg is required", http.StatusBadRequest)
			return
		}
		action(func(ctx context.Context) error {
			if d.Motor == nil {
				return errUnavailable("motor")
			}
			return d.Motor.SetTargetAngle(ctx, *req.AngleDeg)
		})(w, r)
	})

	mux.HandleFunc("/api/motor/command", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Command string `json:"command"`
		}
		if !allowMethod(w, r, http.MethodPost) || !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Command) == "" {
			http.Error(w, "command is required", http.StatusBadRequest)
			return
		}
		action(func(ctx context.Context) error {
			if d.Motor == nil {
				return errUnavailable("motor")
			}
			return d.Motor.Command(ctx, req.Command)
		})(w, r)
	})

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	if d.Attitude != nil {
		mux.Handle("/ws/attitude", attitudeWSHandler(d.Attitude))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		snap := d.Status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>rcgimbal</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>rcgimbal</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a>, <a href=\"/api/logs?format=text\">/api/logs</a> and the <code>/ws/attitude</code> stream.</p>")
		_, _ = fmt.Fprintf(w, "<pre>uptime_sec=%d\nattitude_valid=%t</pre>", snap.UptimeSec, snap.Attitude.Valid)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

type unavailableError string

func (e unavailableError) Error() string { return string(e) + " unavailable" }

func errUnavailable(what string) error { return unavailableError(what) }

// action adapts a POST-only operation. Errors from the service are 400s;
// a missing service is a 404.
func action(fn func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			if _, ok := err.(unavailableError); ok {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"ok\":true}\n"))
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, d Deps) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
