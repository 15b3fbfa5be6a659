package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
	"github.com/markus-lassfolk/gpsselect/pkg/logx"
	"github.com/markus-lassfolk/gpsselect/pkg/mqtt"
	"github.com/markus-lassfolk/gpsselect/pkg/uci"
)

// Command line flags
var (
	configPath = flag.String("config", "", "Load thresholds from a UCI or YAML configuration file")
	inputPath  = flag.String("input", "-", "JSON input file, - for stdin")
	logLevel   = flag.String("log-level", "warn", "Log level (debug|info|warn|error|trace)")
	pretty     = flag.Bool("pretty", true, "Indent JSON output")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	AppName    = "gpsselectctl"
	AppVersion = "1.0.0"
)

var errUsage = errors.New("usage")

type selectInput struct {
	RUTOS    *gps.Fix `json:"rutos"`
	Starlink *gps.Fix `json:"starlink"`
}

type monitorInput struct {
	RUTOS    *gps.Fix         `json:"rutos"`
	Starlink *gps.Fix         `json:"starlink"`
	State    gps.MonitorState `json:"state"`
}

type stabilityInput struct {
	Source gps.Source `json:"source"`
	Fixes  []gps.Fix  `json:"fixes"`
}

type alertInput struct {
	Code    gps.ConditionCode   `json:"code"`
	Result  gps.SelectionResult `json:"result"`
	Context gps.AlertContext    `json:"context"`
}

type significantInput struct {
	Old *gps.Fix `json:"old"`
	New *gps.Fix `json:"new"`
}

func main() {
	flag.Usage = showUsage
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	logger := logx.NewLogger(*logLevel, AppName)
	logger.UseTextFormat()

	if flag.NArg() < 1 {
		showUsage()
		os.Exit(2)
	}

	cfg, err := loadThresholds(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *configPath != "" {
		logger.Debug("Thresholds loaded", "config", *configPath)
	}

	in, closeInput, err := openInput(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeInput()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	logger.Debug("Running command", "command", cmd, "args", strings.Join(args, " "))

	if err := runCommand(gps.NewEvaluator(cfg), cmd, args, in, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			showUsage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadThresholds returns the defaults for an empty path. A named file must
// exist; uci.LoadConfig would fall back to defaults for a missing one.
func loadThresholds(path string) (gps.Config, error) {
	if path == "" {
		return gps.DefaultConfig(), nil
	}
	if _, err := os.Stat(path); err != nil {
		return gps.Config{}, fmt.Errorf("config file: %w", err)
	}
	loaded, err := uci.LoadConfig(path)
	if err != nil {
		return gps.Config{}, err
	}
	return loaded.GPS, nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// runCommand evaluates one core operation and writes its result as JSON
func runCommand(e *gps.Evaluator, cmd string, args []string, in io.Reader, out io.Writer) error {
	var result interface{}

	switch cmd {
	case "select":
		var input selectInput
		if err := decodeInput(in, &input); err != nil {
			return err
		}
		result = e.SelectSource(input.RUTOS, input.Starlink)

	case "monitor":
		var input monitorInput
		if err := decodeInput(in, &input); err != nil {
			return err
		}
		result = e.Tick(input.RUTOS, input.Starlink, input.State)

	case "stability":
		var input stabilityInput
		if err := decodeInput(in, &input); err != nil {
			return err
		}
		result = e.CheckStability(input.Fixes, input.Source)

	case "alert":
		var input alertInput
		if err := decodeInput(in, &input); err != nil {
			return err
		}
		// an unknown code encodes as null
		result = e.HandleAlert(input.Code, input.Result, input.Context)

	case "significant":
		var input significantInput
		if err := decodeInput(in, &input); err != nil {
			return err
		}
		result = map[string]bool{"significant": e.IsSignificantPositionChange(input.Old, input.New)}

	case "distance":
		if len(args) != 4 {
			return fmt.Errorf("%w: distance <lat1> <lon1> <lat2> <lon2>", errUsage)
		}
		coords := make([]float64, 4)
		for i, arg := range args {
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("invalid coordinate %q: %w", arg, err)
			}
			coords[i] = v
		}
		result = map[string]float64{"distance_m": gps.HaversineDistance(coords[0], coords[1], coords[2], coords[3])}

	case "decode":
		if len(args) != 1 {
			return fmt.Errorf("%w: decode <payload>", errUsage)
		}
		fix, err := mqtt.DecodeFix([]byte(args[0]))
		if err != nil {
			return err
		}
		result = fix

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	encoder := json.NewEncoder(out)
	if *pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(result)
}

func decodeInput(in io.Reader, v interface{}) error {
	decoder := json.NewDecoder(in)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	return nil
}

func showUsage() {
	fmt.Printf("%s - GPS source selector tool\n", AppName)
	fmt.Printf("Version: %s\n\n", AppVersion)

	fmt.Println("Usage:")
	fmt.Printf("  %s [options] <command> [args]\n", AppName)
	fmt.Println()

	fmt.Println("Commands (JSON on -input):")
	fmt.Println("  select        {\"rutos\": fix, \"starlink\": fix}")
	fmt.Println("  monitor       {\"rutos\": fix, \"starlink\": fix, \"state\": state}")
	fmt.Println("  stability     {\"source\": \"rutos\", \"fixes\": [fix, ...]}")
	fmt.Println("  alert         {\"code\": code, \"result\": selection, \"context\": accuracies}")
	fmt.Println("  significant   {\"old\": fix, \"new\": fix}")
	fmt.Println()

	fmt.Println("Commands (arguments):")
	fmt.Println("  distance <lat1> <lon1> <lat2> <lon2>   Great-circle distance in metres")
	fmt.Println("  decode <payload>                       Decode a JSON or NMEA GGA fix payload")
	fmt.Println()

	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()

	fmt.Println("Examples:")
	fmt.Printf("  echo '{\"rutos\":{\"latitude\":59.3,\"longitude\":18.1,\"accuracy\":0.8}}' | %s select\n", AppName)
	fmt.Printf("  %s distance 0 0 0 0.8993\n", AppName)
	fmt.Printf("  %s -config /etc/config/gpsselect -input state.json monitor\n", AppName)
}
