package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/wayfinder/nav"
)

// headingCacheMaxAge bounds how stale a persisted heading offset may be.
const headingCacheMaxAge = 12 * time.Hour

// App encapsulates the application state and dependencies
type App struct {
	Config       *nav.Config
	Core         *nav.Core
	Navigator    *nav.Navigator
	StateTracker *nav.StateTracker
	MQTTClient   *nav.MQTTClient
	Publisher    *nav.Publisher
	Out          io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	MapSource    string
	HeadingCache string
	GeoJSON      bool
	Simplify     float64
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: nav.NewStateTracker(),
		Out:          os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.MapSource = opts.MapSource
	a.HeadingCache = opts.HeadingCache
	a.GeoJSON = opts.GeoJSON
	a.Simplify = opts.Simplify
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist, and applies the command line overrides.
func (a *App) loadConfig() (*nav.Config, error) {
	config, err := nav.LoadConfig(a.ConfigFile)
	if err != nil {
		if _, statErr := os.Stat(a.ConfigFile); !os.IsNotExist(statErr) {
			return nil, err
		}
		log.Printf("Warning: %v, using defaults", err)
		config = nav.DefaultConfig()
	}

	if a.MapSource != "" {
		config.Map = a.MapSource
	}
	if a.HeadingCache != "" {
		config.HeadingCache = a.HeadingCache
	}
	if config.Map == "" {
		return nil, fmt.Errorf("no map configured: set map in %s or pass --map", a.ConfigFile)
	}
	a.Config = config
	return config, nil
}

// loadCore loads the config and the recorded map and builds the core.
func (a *App) loadCore(ctx context.Context) error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	graph, err := nav.LoadMap(ctx, config.Map)
	if err != nil {
		return fmt.Errorf("loading map: %w", err)
	}
	log.Printf("[MAP] Loaded %d landmarks from %s", len(graph.Landmarks()), config.Map)

	a.Core = nav.NewCore(graph, config)
	a.Navigator = nav.NewNavigator(a.Core, a.Publisher, a.StateTracker)
	return nil
}

// splitLandmarks parses a comma-separated landmark list.
func splitLandmarks(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// RunPlan plans a route offline and prints its legs and keypoints, or the
// route as GeoJSON.
func (a *App) RunPlan(route string) error {
	ids := splitLandmarks(route)
	if len(ids) < 2 {
		return fmt.Errorf("--plan needs at least two landmarks, got %q", route)
	}
	if err := a.loadCore(context.Background()); err != nil {
		return err
	}

	var err error
	if len(ids) == 2 {
		err = a.Core.PlanRouteBetween(ids[0], ids[1])
	} else {
		err = a.Core.PlanRoute(ids)
	}
	if err != nil {
		return err
	}
	status := a.Core.Snapshot()

	if a.GeoJSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(nav.RouteGeoJSON(status, a.Simplify))
	}

	fmt.Fprintf(a.Out, "Route: %s\n", strings.Join(status.Route, " -> "))
	total := 0.0
	for i := 0; i+1 < len(status.Route); i++ {
		from, to := status.Route[i], status.Route[i+1]
		if e, ok := a.Core.Edge(from, to); ok {
			total += e.Cost()
			fmt.Fprintf(a.Out, "  %s -> %s: %.1fm\n", from, to, e.Cost())
		} else {
			fmt.Fprintf(a.Out, "  %s -> %s: outdoor\n", from, to)
		}
	}
	fmt.Fprintf(a.Out, "Indoor distance: %.1fm\n", total)

	fmt.Fprintf(a.Out, "\nKeypoints (%d):\n", len(status.Keypoints))
	for i, kp := range status.Keypoints {
		p := kp.Position()
		fmt.Fprintf(a.Out, "  %2d  (%6.2f, %6.2f, %6.2f)  %s", i, p.X, p.Y, p.Z, kp.Mode)
		if kp.ID != "" {
			fmt.Fprintf(a.Out, "  anchor=%s", kp.ID)
		}
		fmt.Fprintln(a.Out)
	}
	return nil
}

// RunReachable lists the landmarks that can be routed to from one landmark.
func (a *App) RunReachable(from string) error {
	if err := a.loadCore(context.Background()); err != nil {
		return err
	}
	if !a.landmarkKnown(from) {
		return fmt.Errorf("unknown landmark %q", from)
	}

	var ids []string
	for _, l := range a.Core.Landmarks() {
		ids = append(ids, l.ID)
	}
	reachable := a.Core.ReachableSet([]string{from}, ids)

	fmt.Fprintf(a.Out, "Reachable from %s (%d of %d):\n", from, len(reachable), len(ids))
	for _, id := range reachable {
		fmt.Fprintf(a.Out, "  - %s\n", id)
	}
	return nil
}

func (a *App) landmarkKnown(id string) bool {
	for _, l := range a.Core.Landmarks() {
		if l.ID == id {
			return true
		}
	}
	return false
}

// RunService runs the live guidance service: device messages arrive over
// MQTT, guidance is published back, and state is served over HTTP.
func (a *App) RunService() {
	fmt.Println("Starting wayfinder service...")

	// 1. Load config and the recorded map (required)
	if err := a.loadCore(context.Background()); err != nil {
		log.Fatalf("Failed to start: %v (config %s)", err, a.ConfigFile)
	}
	config := a.Config
	log.Printf("Loaded config from %s", a.ConfigFile)

	// 2. Restore the heading offset (optional)
	if config.HeadingCache != "" {
		restored, err := nav.RestoreHeadingOffset(a.Core, config.HeadingCache, headingCacheMaxAge)
		switch {
		case err != nil:
			log.Printf("Warning: Failed to load heading cache %s: %v", config.HeadingCache, err)
		case restored:
			log.Printf("[HEADING] Restored offset %.1f° from %s", a.Core.HeadingOffset()*180/math.Pi, config.HeadingCache)
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Start MQTT if enabled
	if a.MqttMode {
		go a.Navigator.Run(ctx)
		mqttClient, err := nav.InitMQTT(config, a.Navigator.Enqueue)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		a.MQTTClient = mqttClient

		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}

		a.Publisher = nav.NewPublisher(mqttClient.GetClient(), config.MQTT.PublishPrefix)
		a.Navigator.SetPublisher(a.Publisher)
		fmt.Println("MQTT guidance publisher initialized")
	}

	// 4. Start HTTP server if enabled
	if a.HttpMode {
		httpServer := newHTTPServer(a.Navigator, a.Config)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
			log.Printf("[HTTP] Server stopped unexpectedly")
		}()
	}

	// 5. Print service info
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		fmt.Printf("    - %s (pose)\n", config.MQTT.PoseTopic)
		fmt.Printf("    - %s (landmark)\n", config.MQTT.LandmarkTopic)
		fmt.Printf("    - %s (geolocation)\n", config.MQTT.GeolocationTopic)
		fmt.Printf("    - %s (route)\n", config.MQTT.RouteTopic)
		fmt.Printf("  Guidance: %s\n", a.Publisher.DirectionTopic())
		fmt.Printf("  Route status: %s\n", a.Publisher.RouteTopic())
		fmt.Printf("  Events: %s\n", a.Publisher.EventsTopic())
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health         - Health check")
		fmt.Println("  GET  /route          - Active route status")
		fmt.Println("  POST /route          - Plan a route")
		fmt.Println("  GET  /route.geojson  - Active route as GeoJSON")
		fmt.Println("  GET  /direction      - Latest guidance")
		fmt.Println("  GET  /events         - Recent navigation events")
		fmt.Println("  GET  /landmarks      - Recorded landmarks")
		fmt.Println("  GET  /reachable?from=ID - Landmarks reachable from ID")
		fmt.Println("  GET  /edge.geojson?from=ID&to=ID - Recorded segment as GeoJSON")
		fmt.Println("  GET  /entrances.geojson - Outdoor entrances")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	// 6. Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	stop()
	if config.HeadingCache != "" {
		if err := nav.PersistHeadingOffset(a.Core, config.HeadingCache); err != nil {
			log.Printf("Warning: Failed to save heading cache: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}
