// gpsfeed reads NMEA sentences from a serial GPS and pushes geodetic
// pose readings to a remote ingest endpoint.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/yutaka0114/telepose/internal/httputil"
	"github.com/yutaka0114/telepose/internal/ingest"
	"github.com/yutaka0114/telepose/internal/timeutil"
)

func main() {
	var (
		port     = flag.String("port", "/dev/ttyUSB0", "Serial port of the GPS receiver")
		baud     = flag.Int("baud", 9600, "Serial baud rate")
		pushURL  = flag.String("push-url", "", "Ingest endpoint URL (required)")
		interval = flag.Duration("interval", 200*time.Millisecond, "Push interval")
		timeout  = flag.Duration("timeout", 3*time.Second, "Push request timeout")
		token    = flag.String("token", "", "Bearer token for the ingest endpoint")
	)
	flag.Parse()

	if *pushURL == "" {
		log.Fatal("push-url is required")
	}

	mode := &serial.Mode{BaudRate: *baud}
	gps, err := serial.Open(*port, mode)
	if err != nil {
		log.Fatalf("failed to open serial port %s: %v", *port, err)
	}
	defer gps.Close()
	log.Printf("reading NMEA from %s at %d baud", *port, *baud)

	tracker := NewFixTracker()
	pusher := ingest.NewPusher(ingest.PusherConfig{
		PushURL:  *pushURL,
		Interval: *interval,
		Timeout:  *timeout,
		Token:    *token,
	}, httputil.NewStandardClient(&http.Client{}), tracker, timeutil.RealClock{})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		pusher.Run(ctx)
		log.Print("pusher routine terminated")
	}()

	// reader routine: serial reads have no ctx support, closing the
	// port on cancellation unblocks the scanner
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(gps)
		for scanner.Scan() {
			if err := tracker.ApplyLine(scanner.Text()); err != nil {
				log.Printf("nmea error: %v", err)
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Printf("serial read error: %v", err)
		}
		log.Print("reader routine terminated")
	}()

	<-ctx.Done()
	gps.Close()
	wg.Wait()
	log.Print("graceful shutdown complete")
}
