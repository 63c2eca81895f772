package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"rcgimbal/internal/config"
	"rcgimbal/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./rcgimbal.yaml", "Path to YAML config")
	flag.Parse()

	logs := web.NewLogBuffer(2000)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("rcgimbal starting")
	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("runtime init failed: %v", err)
	}

	var wg sync.WaitGroup
	startBackground(ctx, &wg, rt, logs)

	<-ctx.Done()
	log.Printf("rcgimbal stopping")
	rt.Close()
	wg.Wait()
}

// startBackground launches the optional outer surfaces. Their failures are
// logged and never take the control loops down.
func startBackground(ctx context.Context, wg *sync.WaitGroup, rt *runtime, logs *web.LogBuffer) {
	c := rt.cfg
	goFn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && ctx.Err() == nil {
				log.Printf("%s stopped: %v", name, err)
			}
		}()
	}

	if c.Web.Enable {
		log.Printf("web listen=%s", c.Web.Listen)
		goFn("web", func() error { return web.Serve(ctx, c.Web.Listen, rt.webDeps(logs)) })
		if rt.ahrsSvc != nil {
			goFn("attitude pump", func() error {
				rt.attitude.Pump(ctx, c.Web.AttitudeInterval, rt.attitudeSnapshot)
				return nil
			})
		}
	}
	if c.Telemetry.Enable {
		log.Printf("telemetry broker=%s prefix=%s", c.Telemetry.Broker, c.Telemetry.TopicPrefix)
		goFn("telemetry", func() error { return rt.newTelemetry().Run(ctx) })
	}
	if c.Console.Enable {
		log.Printf("console port=%s baud=%d", c.Console.Port, c.Console.Baud)
		goFn("console", func() error { return rt.newConsole().Run(ctx) })
	}
}
