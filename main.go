package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
	ConfigFile   string
	MapSource    string
	HeadingCache string

	Plan      string  // "FROM,TO" or a comma-separated landmark list
	Reachable string  // landmark to start a reachability query from
	GeoJSON   bool    // print --plan output as GeoJSON
	Simplify  float64 // Douglas-Peucker tolerance for GeoJSON lines, metres

	MqttMode bool
	HttpMode bool
	HttpPort int
}

// Runner is implemented by App; tests substitute a recorder.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunPlan(route string) error
	RunReachable(from string) error
	RunService()
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("wayfinder", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.MapSource, "map", "", "Recorded map file or http(s) URL (overrides config)")
	fs.StringVar(&opts.HeadingCache, "heading-cache", "", "Path to heading offset cache (overrides config)")
	fs.StringVar(&opts.Plan, "plan", "", "Plan a route and exit: FROM,TO or A,B,C")
	fs.StringVar(&opts.Reachable, "reachable", "", "List landmarks reachable from a landmark and exit")
	fs.BoolVar(&opts.GeoJSON, "geojson", false, "Print the planned route as GeoJSON")
	fs.Float64Var(&opts.Simplify, "simplify", 0, "Line simplification tolerance in metres for --geojson")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode for live guidance")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for navigation state")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "wayfinder version: %s\n", Version)
	if *showVersion {
		return nil
	}

	app.ApplyOptions(opts)

	switch {
	case opts.Plan != "":
		return app.RunPlan(opts.Plan)
	case opts.Reachable != "":
		return app.RunReachable(opts.Reachable)
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
		return nil
	}

	fmt.Fprintln(out, "wayfinder service starting...")
	fmt.Fprintln(out, "Use --plan=FROM,TO to plan a route and print its keypoints")
	fmt.Fprintln(out, "Use --plan=FROM,TO --geojson to export the route as GeoJSON")
	fmt.Fprintln(out, "Use --reachable=ID to list landmarks reachable from ID")
	fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
	fmt.Fprintln(out, "Use --http to run HTTP server mode")
	fmt.Fprintln(out, "Use --mqtt --http to run both MQTT and HTTP together")
	fmt.Fprintln(out, "\nConfiguration:")
	fmt.Fprintln(out, "  config.yaml - MQTT settings, map source and guidance tuning")
	fmt.Fprintln(out, "  map         - recorded anchors and connections (JSON)")
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}
