// report renders offline diagnostics from the sample log: distance
// percentiles per session and HTML charts of altitude smoothing and
// horizontal distance from the calibration origin.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/yutaka0114/telepose/internal/db"
	"github.com/yutaka0114/telepose/internal/geo"
	"github.com/yutaka0114/telepose/internal/placement"
)

func main() {
	var (
		dbFile    = flag.String("db", "telepose.db", "Sqlite sample log path")
		sessionID = flag.String("session", "", "Session to report on (defaults to most recent)")
		out       = flag.String("out", "report.html", "Output HTML file")
		tau       = flag.Float64("tau", 0.8, "Altitude smoother time constant (seconds)")
		maxStep   = flag.Float64("max-step", 0.5, "Altitude smoother per-update step limit (meters)")
	)
	flag.Parse()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	session, err := pickSession(database, *sessionID)
	if err != nil {
		log.Fatalf("failed to pick session: %v", err)
	}

	samples, err := database.AllSamples(session.SessionID)
	if err != nil {
		log.Fatalf("failed to load samples: %v", err)
	}
	if len(samples) == 0 {
		log.Fatalf("session %s has no samples", session.SessionID)
	}
	log.Printf("session %s: %d samples", session.SessionID, len(samples))

	distances := sessionDistances(session, samples)
	printPercentiles(distances)

	page := components.NewPage()
	page.AddCharts(
		altitudeChart(samples, *tau, *maxStep),
		distanceChart(samples, distances),
	)

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s", *out)
}

func pickSession(database *db.DB, sessionID string) (db.SessionRecord, error) {
	sessions, err := database.Sessions()
	if err != nil {
		return db.SessionRecord{}, err
	}
	if len(sessions) == 0 {
		return db.SessionRecord{}, fmt.Errorf("no sessions in database")
	}
	if sessionID == "" {
		return sessions[0], nil
	}
	for _, s := range sessions {
		if s.SessionID == sessionID {
			return s, nil
		}
	}
	return db.SessionRecord{}, fmt.Errorf("session %s not found", sessionID)
}

// sessionDistances computes each sample's horizontal distance from the
// session origin. Uncalibrated sessions fall back to the first sample
// as the origin.
func sessionDistances(session db.SessionRecord, samples []db.SampleRecord) []float64 {
	originLat, originLon := samples[0].Lat, samples[0].Lon
	if session.OriginLat != nil && session.OriginLon != nil {
		originLat, originLon = *session.OriginLat, *session.OriginLon
	}
	proj := geo.Projector{OriginLat: originLat, OriginLon: originLon}

	distances := make([]float64, len(samples))
	for i, s := range samples {
		east, north := proj.Project(s.Lat, s.Lon)
		distances[i] = geo.Vec3{X: east, Z: north}.HorizontalMag()
	}
	return distances
}

func printPercentiles(distances []float64) {
	sorted := append([]float64(nil), distances...)
	sort.Float64s(sorted)

	fmt.Printf("distance from origin (m), n=%d\n", len(sorted))
	for _, p := range []float64{0.50, 0.90, 0.95, 0.99} {
		q := stat.Quantile(p, stat.Empirical, sorted, nil)
		fmt.Printf("  p%02.0f  %8.2f\n", p*100, q)
	}
	fmt.Printf("  max  %8.2f\n", sorted[len(sorted)-1])
}

// altitudeChart replays the altitude series through the jump-limited
// smoother so raw and smoothed traces can be compared.
func altitudeChart(samples []db.SampleRecord, tau, maxStep float64) *charts.Line {
	smoother := placement.NewSmoother(tau, maxStep)

	axis := make([]string, len(samples))
	raw := make([]opts.LineData, len(samples))
	smoothed := make([]opts.LineData, len(samples))
	for i, s := range samples {
		axis[i] = s.ReceivedAt.Format("15:04:05.000")
		raw[i] = opts.LineData{Value: s.Alt}
		smoothed[i] = opts.LineData{Value: smoother.Update(s.Alt, s.ReceivedAt)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Altitude smoothing",
			Subtitle: fmt.Sprintf("tau=%.2fs max_step=%.2fm", tau, maxStep),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "altitude (m)"}),
	)
	line.SetXAxis(axis).
		AddSeries("raw", raw).
		AddSeries("smoothed", smoothed)
	return line
}

func distanceChart(samples []db.SampleRecord, distances []float64) *charts.Line {
	axis := make([]string, len(samples))
	data := make([]opts.LineData, len(samples))
	for i, s := range samples {
		axis[i] = s.ReceivedAt.Format("15:04:05.000")
		data[i] = opts.LineData{Value: distances[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Horizontal distance from origin"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance (m)"}),
	)
	line.SetXAxis(axis).AddSeries("distance", data)
	return line
}
