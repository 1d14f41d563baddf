// Command uselessbox runs the useless box: it watches the touch pads and
// switches, flips switches back with the push arm and publishes what it did
// to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"

	"github.com/sweeney/uselessbox/internal/box"
	"github.com/sweeney/uselessbox/internal/bridge"
	"github.com/sweeney/uselessbox/internal/calibrate"
	"github.com/sweeney/uselessbox/internal/gpio"
	"github.com/sweeney/uselessbox/internal/logic"
	"github.com/sweeney/uselessbox/internal/mode"
	"github.com/sweeney/uselessbox/internal/mqtt"
	"github.com/sweeney/uselessbox/internal/servo"
	"github.com/sweeney/uselessbox/internal/status"
	"github.com/sweeney/uselessbox/internal/store"
	"github.com/sweeney/uselessbox/internal/touch"
	"github.com/sweeney/uselessbox/internal/web"
)

// Backends.
const (
	backendLinux  = "linux"
	backendSerial = "serial"
)

// exitRestart asks the service manager to start the daemon again.
const exitRestart = 3

// defaultWebAddr is used when the web boot option is set and -http is empty.
const defaultWebAddr = ":80"

type config struct {
	backend     string
	gpioChip    string
	pins        [logic.NumChannels]int
	pwmChip     string
	pwmChannels [servo.NumAxes]int
	i2cBus      string
	mpr121Addr  int
	serialPort  string
	baud        int
	storePath   string
	broker      string
	httpAddr    string
	heartbeat   time.Duration
	mode        string
	profile     string
	reboot      bool
	debug       bool
	printState  bool
}

func main() {
	var cfg config
	var pins, channels string
	flag.StringVar(&cfg.backend, "backend", backendLinux, `Hardware backend ("linux" or "serial")`)
	flag.StringVar(&cfg.gpioChip, "gpiochip", gpio.DefaultChip, "GPIO chip holding the switch lines")
	flag.StringVar(&pins, "pins", joinInts(gpio.DefaultPins[:]), "BCM line offsets of switches 0-3")
	flag.StringVar(&cfg.pwmChip, "pwmchip", servo.DefaultPWMChip, "sysfs PWM chip driving the servos")
	flag.StringVar(&channels, "pwm-channels", joinInts(servo.DefaultChannels[:]), "PWM channels of the rotation, push and lid servos")
	flag.StringVar(&cfg.i2cBus, "i2c", touch.DefaultBus, "I2C bus of the MPR121 touch controller")
	flag.IntVar(&cfg.mpr121Addr, "mpr121-addr", touch.DefaultAddr, "I2C address of the MPR121")
	flag.StringVar(&cfg.serialPort, "serial-port", "/dev/ttyUSB0", "Serial port of the bridge microcontroller")
	flag.IntVar(&cfg.baud, "baud", bridge.DefaultBaud, "Serial bridge baud rate")
	flag.StringVar(&cfg.storePath, "store", store.DefaultPath, "Calibration file")
	flag.StringVar(&cfg.broker, "broker", "tcp://localhost:1883", "MQTT broker address (empty to disable)")
	flag.StringVar(&cfg.httpAddr, "http", "", "HTTP status address (empty: only with the web boot option)")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&cfg.mode, "mode", "", "Override the switch-selected mode (touch, notouch, config, move, kiosk)")
	flag.StringVar(&cfg.profile, "profile", "", `Override the calibration profile ("normal" or "battery")`)
	flag.BoolVar(&cfg.reboot, "reboot", false, "Reboot the host on restart instead of exiting")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging")
	flag.BoolVar(&cfg.printState, "print-state", false, "Print switches, readings and calibration and exit")
	flag.Parse()

	level := new(slog.LevelVar)
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
	slog.SetDefault(log)

	var err error
	if cfg.pins, err = parsePins(pins); err != nil {
		log.Error("bad -pins", "err", err)
		os.Exit(2)
	}
	if cfg.pwmChannels, err = parseChannels(channels); err != nil {
		log.Error("bad -pwm-channels", "err", err)
		os.Exit(2)
	}

	code, err := run(cfg, log, level)
	if err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// hardware is the set of devices the box runs on.
type hardware struct {
	switches gpio.Reader
	sensor   touch.Sensor
	driver   servo.Driver
	close    func() error
}

func openHardware(cfg config) (*hardware, error) {
	switch cfg.backend {
	case backendLinux:
		switches, err := gpio.NewRealReader(cfg.gpioChip, cfg.pins)
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		driver, err := servo.NewSysfsDriver(cfg.pwmChip, cfg.pwmChannels)
		if err != nil {
			switches.Close()
			return nil, fmt.Errorf("init servos: %w", err)
		}
		sensor, err := touch.NewMPR121(cfg.i2cBus, cfg.mpr121Addr)
		if err != nil {
			driver.Close()
			switches.Close()
			return nil, fmt.Errorf("init touch: %w", err)
		}
		return &hardware{
			switches: switches,
			sensor:   sensor,
			driver:   driver,
			close: func() error {
				return errors.Join(sensor.Close(), driver.Close(), switches.Close())
			},
		}, nil
	case backendSerial:
		b, err := bridge.Open(cfg.serialPort, cfg.baud)
		if err != nil {
			return nil, fmt.Errorf("init bridge: %w", err)
		}
		return &hardware{
			switches: b.Switches(),
			sensor:   b.Touch(),
			driver:   b,
			close:    b.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.backend)
	}
}

func run(cfg config, log *slog.Logger, level *slog.LevelVar) (int, error) {
	if cfg.debug {
		level.Set(slog.LevelDebug)
	}

	hw, err := openHardware(cfg)
	if err != nil {
		return 0, err
	}
	closeHardware := func() {
		if err := hw.close(); err != nil {
			log.Warn("close hardware", "err", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Boot options come from the switches as found at power-on.
	bootMap, err := hw.switches.Read()
	if err != nil {
		log.Warn("read boot switches, using defaults", "err", err)
		bootMap = 0
	}
	opts := mode.DecodeOptions(bootMap)
	if opts.Verbose {
		level.Set(slog.LevelDebug)
	}

	profile := opts.Profile()
	if cfg.profile != "" {
		if profile, err = parseProfile(cfg.profile); err != nil {
			closeHardware()
			return 0, err
		}
	}

	st := store.NewFileStore(cfg.storePath)
	entries, err := st.Load(profile)
	if err != nil {
		log.Warn("calibration not loaded, using defaults", "profile", string(profile), "err", err)
	}

	if cfg.printState {
		defer closeHardware()
		return 0, printState(os.Stdout, hw, profile, entries)
	}

	var m mode.Mode
	if cfg.mode != "" {
		if m, err = mode.Parse(cfg.mode); err != nil {
			closeHardware()
			return 0, err
		}
	} else {
		sel := mode.Selector{Switches: hw.switches, Log: log}
		if m, err = sel.Select(ctx, opts); err != nil {
			log.Warn("mode selection failed, using touch", "err", err)
			m = mode.Touch
		}
	}
	tasks := m.Tasks()

	httpAddr := cfg.httpAddr
	if httpAddr == "" && opts.Web {
		httpAddr = defaultWebAddr
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     cfg.backend,
		PollMs:      touch.DefaultInterval.Milliseconds(),
		HeartbeatMs: cfg.heartbeat.Milliseconds(),
		Broker:      cfg.broker,
		HTTPAddr:    httpAddr,
		Store:       st.Path(),
	})
	tracker.SetCalibration(entries)
	tracker.SetMode(m.String(), string(profile), tasks.Watchdog)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var publisher mqtt.Publisher = mqtt.Discard{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.Discard{}
	if cfg.broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.broker, "uselessbox-"+uuid.NewString()[:8], log.With("component", "mqtt"))
		if err != nil {
			log.Warn("mqtt disabled", "err", err)
		} else {
			publisher, mqttStatus = p, p
		}
	}
	defer publisher.Close()

	pump := mqtt.NewPump(publisher, 32, log)
	onEvent := func(e logic.Event) {
		if e.Type == logic.EventPush {
			tracker.CountPush(e.Channel)
		}
		log.Info("event", "type", string(e.Type), "channel", int(e.Channel))
		pump.Send(e)
	}

	act := servo.NewActuator(hw.driver, servo.WithLogger(log.With("component", "servo")))
	ctl := box.NewController(act, hw.switches, tracker,
		box.WithLogger(log.With("component", "control")),
		box.WithEvents(onEvent))

	log.Info("starting", "mode", m.String(), "profile", string(profile), "backend", cfg.backend)
	ctl.StartupPosition()

	sv := &supervisor{
		log:        log,
		sensor:     hw.sensor,
		switches:   hw.switches,
		tracker:    tracker,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		heartbeat:  logic.NewHeartbeat(cfg.heartbeat, time.Now()),
		now:        time.Now,
	}
	if tasks.Watchdog {
		sv.watchdog = logic.NewRestartDetector(logic.DefaultRestartWindow)
	}
	sv.publishStatus("STARTUP", "", true)

	if httpAddr != "" {
		srv := web.New(httpAddr, tracker, hw.switches, log.With("component", "web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info("http status server listening", "addr", httpAddr)
	}

	restartCh := make(chan string, 1)
	requestRestart := func(reason string) {
		select {
		case restartCh <- reason:
		default:
		}
	}

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Debug("task finished", "task", name)
		}()
	}
	if tasks.Monitor {
		mon := touch.NewMonitor(hw.sensor, tracker, log.With("component", "touch"))
		start("monitor", mon.Run)
	}
	if tasks.Control {
		start("control", ctl.Run)
	}
	if tasks.Move {
		start("move", box.NewTeleop(ctl).Run)
	}
	if tasks.Calibrate {
		proc := calibrate.New(ctl, hw.sensor, st, profile, tracker,
			calibrate.WithLogger(log.With("component", "calibrate")),
			calibrate.WithEvents(onEvent),
			calibrate.WithRestart(requestRestart),
			calibrate.WithUIOpen(httpAddr != ""))
		start("calibrate", func(ctx context.Context) { proc.Run(ctx) })
	}

	ticker := time.NewTicker(watchdogTick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	result := sv.runLoop(ticker.C, sigCh, restartCh)

	cancel()
	wg.Wait()
	pump.Close()

	if !result.restart {
		closeHardware()
		return 0, nil
	}

	log.Warn("restarting", "reason", result.reason)
	closeHardware()
	if cfg.reboot {
		if err := reboot(); err != nil {
			return 0, fmt.Errorf("reboot: %w", err)
		}
	}
	return exitRestart, nil
}

func printState(w io.Writer, hw *hardware, profile store.Profile, entries store.Entries) error {
	m, err := hw.switches.Read()
	if err != nil {
		return fmt.Errorf("read switches: %w", err)
	}
	fmt.Fprintf(w, "Switches: %s\n", m)
	for c := logic.Channel(0); c < logic.NumChannels; c++ {
		raw, err := hw.sensor.Read(c)
		if err != nil {
			fmt.Fprintf(w, "Touch %d: error: %v\n", c, err)
			continue
		}
		fmt.Fprintf(w, "Touch %d: %d\n", c, raw)
	}
	fmt.Fprintf(w, "Calibration (%s):\n%s", profile, calibrate.FormatTable(entries))
	return nil
}

func parseProfile(s string) (store.Profile, error) {
	switch p := store.Profile(strings.ToLower(s)); p {
	case store.ProfileNormal, store.ProfileBattery:
		return p, nil
	}
	return "", fmt.Errorf("unknown profile %q", s)
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated values, got %q", n, s)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("value %d: negative", i)
		}
		out[i] = v
	}
	return out, nil
}

func parsePins(s string) ([logic.NumChannels]int, error) {
	var pins [logic.NumChannels]int
	v, err := parseInts(s, logic.NumChannels)
	if err != nil {
		return pins, err
	}
	copy(pins[:], v)
	return pins, nil
}

func parseChannels(s string) ([servo.NumAxes]int, error) {
	var ch [servo.NumAxes]int
	v, err := parseInts(s, servo.NumAxes)
	if err != nil {
		return ch, err
	}
	copy(ch[:], v)
	return ch, nil
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}
