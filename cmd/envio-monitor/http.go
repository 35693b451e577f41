package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rastreiolabs/enviowatch/internal/services/composer"
	"github.com/rastreiolabs/enviowatch/internal/services/monitor"
	"github.com/rastreiolabs/enviowatch/internal/store"
)

type httpOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	store   store.Store
	monitor *monitor.Monitor
	sched   *monitor.Scheduler
	comp    *composer.Composer
	log     *slog.Logger
}

func runHTTPServer(ctx context.Context, opts httpOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

func newRouter(opts httpOpts) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, _, err := opts.store.Get(r.Context(), store.KeyIntervalMinutes); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"store unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(opts.monitor.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		cfg := monitor.LoadConfig(r.Context(), opts.store, opts.log)

		startDisplay, _ := monitor.SchedulingToDisplayHour(hourToHHMM(cfg.WindowStartHour))
		// Час 24 (конец суток) для дисплейной конверсии — та же полночь.
		endDisplay, _ := monitor.SchedulingToDisplayHour(hourToHHMM(cfg.WindowEndHour % 24))

		out := map[string]any{
			"intervalMinutes":  cfg.IntervalMinutes,
			"windowStartUTC":   hourToHHMM(cfg.WindowStartHour),
			"windowEndUTC":     hourToHHMM(cfg.WindowEndHour),
			"windowStartLocal": startDisplay,
			"windowEndLocal":   endDisplay,
			"monitorRunning":   opts.sched.MonitorRunning(),
		}
		if next := opts.sched.NextPollAt(); !next.IsZero() {
			out["nextPollAt"] = next.Format(time.RFC3339)
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Put("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var in struct {
			IntervalMinutes  *int    `json:"intervalMinutes"`
			WindowStartLocal *string `json:"windowStartLocal"` // "HH:MM", display-таймзона
			WindowEndLocal   *string `json:"windowEndLocal"`
			UpdateTemplate   *string `json:"updateTemplate"`
			WelcomeTemplate  *string `json:"welcomeTemplate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		ctx := r.Context()

		// Окно валидируется целиком до записи. Дисплейные 21:00 по Бразилии —
		// это "00:00" UTC, то есть конец суток (час 24); всё, что заезжает
		// дальше за полночь UTC, в пределах одних суток не выражается.
		cur := monitor.LoadConfig(ctx, opts.store, opts.log)
		startHour, endHour := cur.WindowStartHour, cur.WindowEndHour
		var startUTC, endUTC string
		if in.WindowStartLocal != nil {
			utc, err := monitor.DisplayToSchedulingHour(*in.WindowStartLocal)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			startUTC = utc
			startHour, _ = strconv.Atoi(utc[:2])
		}
		if in.WindowEndLocal != nil {
			utc, err := monitor.DisplayToSchedulingHour(*in.WindowEndLocal)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
				return
			}
			endUTC = utc
			endHour, _ = strconv.Atoi(utc[:2])
			if endHour == 0 {
				endHour = 24
			}
		}
		if (in.WindowStartLocal != nil || in.WindowEndLocal != nil) && startHour >= endHour {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "window end must be after window start in UTC"})
			return
		}

		if in.IntervalMinutes != nil {
			if err := opts.store.Set(ctx, store.KeyIntervalMinutes, []byte(strconv.Itoa(*in.IntervalMinutes))); err != nil {
				writeStoreError(w, err)
				return
			}
		}
		if startUTC != "" {
			if err := opts.store.Set(ctx, store.KeyWindowStartHour, []byte(startUTC)); err != nil {
				writeStoreError(w, err)
				return
			}
		}
		if endUTC != "" {
			if err := opts.store.Set(ctx, store.KeyWindowEndHour, []byte(endUTC)); err != nil {
				writeStoreError(w, err)
				return
			}
		}
		if in.UpdateTemplate != nil {
			if err := opts.store.Set(ctx, store.KeyUpdateTemplate, []byte(*in.UpdateTemplate)); err != nil {
				writeStoreError(w, err)
				return
			}
			opts.comp.Invalidate(composer.KindUpdate)
		}
		if in.WelcomeTemplate != nil {
			if err := opts.store.Set(ctx, store.KeyWelcomeTemplate, []byte(*in.WelcomeTemplate)); err != nil {
				writeStoreError(w, err)
				return
			}
			opts.comp.Invalidate(composer.KindWelcome)
		}

		// Интервал и окно применяются переустановкой джобы, если она идёт.
		if opts.sched.MonitorRunning() {
			if _, err := opts.sched.StartMonitor(ctx); err != nil {
				writeStoreError(w, err)
				return
			}
		}
		_, _ = w.Write([]byte(`{"updated":true}`))
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.sched.TriggerPoll() {
			_, _ = w.Write([]byte(`{"triggered":true}`))
			return
		}
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"triggered":false,"reason":"poll already running"}`))
	})

	r.Post("/monitor/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		first, err := opts.sched.StartMonitor(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"started":  true,
			"firstRun": first.Format(time.RFC3339),
		})
	})

	r.Post("/monitor/stop", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		opts.sched.StopMonitor()
		_, _ = w.Write([]byte(`{"stopped":true}`))
	})

	return r
}

func hourToHHMM(h int) string {
	return strconv.Itoa(h/10) + strconv.Itoa(h%10) + ":00"
}

func writeStoreError(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
