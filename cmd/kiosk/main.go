package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"checkin/internal/config"
	"checkin/internal/connectivity"
	"checkin/internal/edutec"
	"checkin/internal/queue"
	"checkin/internal/registrar"
	"checkin/internal/roster"
	"checkin/internal/scan"
)

// Kiosk reads decoded scanner output from stdin (USB barcode readers in
// keyboard-wedge mode emit the payload followed by a newline), registers
// attendance and prints outcomes. Buffered offline attempts replay
// automatically when connectivity returns.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	api := edutec.New(cfg.APIBaseURL, cfg.APITimeout)
	monitor := connectivity.NewMonitor(cfg.ProbeURL, cfg.ProbeTimeout, cfg.ProbeInterval)
	pending := queue.NewPending()
	reg := registrar.New(api, monitor, pending)
	store := roster.NewMemory()

	go monitor.Run(ctx)
	go reg.Watch(ctx, monitor.Subscribe())

	if n, err := roster.Refresh(ctx, api, store); err != nil {
		log.Printf("WARNING: roster not loaded: %v", err)
	} else {
		log.Printf("roster loaded: %d entries", n)
	}

	log.Printf("kiosk %s ready, scan a code or type a DNI", cfg.KioskDevice)

	lines := make(chan string)
	go func() {
		defer close(lines)
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			lines <- strings.TrimSpace(in.Text())
		}
	}()

	var gate scan.Gate
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				log.Println("input closed, kiosk stopped")
				return
			}
			if line == "" {
				continue
			}
			if !gate.TryAcquire() {
				// Previous scan still resolving; drop the repeat frame.
				continue
			}
			go func(payload string) {
				defer gate.Release()
				process(ctx, reg, store, payload)
			}(line)
		case <-ctx.Done():
			if n := pending.Len(); n > 0 {
				log.Printf("WARNING: %d unsent check-in(s) lost on shutdown", n)
			}
			log.Println("kiosk stopped")
			return
		}
	}
}

func process(ctx context.Context, reg *registrar.Registrar, store roster.Store, payload string) {
	id, err := scan.Decode(payload)
	if err != nil {
		log.Printf("[rejected] %v", err)
		return
	}

	// A typed bare DNI is a manual entry; JSON payloads come off a QR.
	method := registrar.MethodQR
	if payload == id.DNI {
		method = registrar.MethodManual
		if entry, err := store.FindByDNI(ctx, id.DNI); err == nil && entry != nil {
			id.FullName = entry.FullName
		}
	}

	out := reg.Register(ctx, id, method)
	log.Printf("[%s] %s — %s", out.Kind, id.DNI, out.Message)
}
