package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"gpsmon/commands"
	"gpsmon/config"
	"gpsmon/driver"
	"gpsmon/eventloop"
	"gpsmon/monitor"
	"gpsmon/nmeamon"
	"gpsmon/offset"
	"gpsmon/pps"
	"gpsmon/publish"
	"gpsmon/recorder"
	"gpsmon/report"
	"gpsmon/session"
	"gpsmon/ubxmon"
	"gpsmon/visualize"
)

// Version will be set at build time
var Version = "dev"

// exitError carries a process exit status out of run.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(os.Args[1:]); err != nil {
		var coded *exitError
		if errors.As(err, &coded) {
			if coded.msg != "" {
				fmt.Fprintln(os.Stderr, coded.msg)
			}
			os.Exit(coded.code)
		}
		fmt.Fprintf(os.Stderr, "gpsmon: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	noCurses   bool
	debug      int
	list       bool
	logFile    string
	nmea       bool
	typeName   string
	version    bool
	help       bool
	configPath string
	capture    string
	endpoint   string
}

// Purpose: Parse the command line with GNU-style short and long options.
// Key aspects: At most one positional endpoint argument.
// Upstream: run.
// Downstream: pflag.FlagSet.Parse.
func parseArgs(args []string, stderr io.Writer) (*options, *pflag.FlagSet, error) {
	var opts options
	fs := pflag.NewFlagSet("gpsmon", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVarP(&opts.noCurses, "nocurses", "a", false, "No curses. Data only.")
	fs.IntVarP(&opts.debug, "debug", "D", 0, "Set DEBUGLEVEL")
	fs.BoolVarP(&opts.list, "list", "L", false, "List known device types, then exit.")
	fs.StringVarP(&opts.logFile, "logfile", "l", "", "Log to LOGFILE")
	fs.BoolVarP(&opts.nmea, "nmea", "n", false, "Force NMEA mode.")
	fs.StringVarP(&opts.typeName, "type", "t", "", "Set receiver TYPE")
	fs.BoolVarP(&opts.version, "version", "V", false, "Show version, then exit")
	fs.BoolVarP(&opts.help, "help", "h", false, "Show this help, then exit")
	fs.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVar(&opts.capture, "capture", "", "SQLite packet capture database")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	rest := fs.Args()
	if len(rest) > 1 {
		return nil, fs, fmt.Errorf("unexpected argument: %s", rest[1])
	}
	if len(rest) == 1 {
		opts.endpoint = rest[0]
	}
	return &opts, fs, nil
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "usage: gpsmon [OPTIONS] [server[:port[:device]]] | /dev/path | telnet://host:port\n\n")
	fs.PrintDefaults()
}

// Purpose: Build the panel registry.
// Key aspects: dev may be nil when the registry is only listed or searched.
// Upstream: run.
// Downstream: nmeamon.Handlers, ubxmon.Handler, monitor.NewRegistry.
func buildRegistry(dev *session.Session) (*monitor.Registry, error) {
	var (
		source nmeamon.Source
		device nmeamon.Device
		ubx    ubxmon.Source
	)
	if dev != nil {
		source, device, ubx = dev, dev, dev
	}
	handlers := nmeamon.Handlers(source, device)
	handlers = append(handlers, ubxmon.Handler(ubx), monitor.Passthrough())
	return monitor.NewRegistry(handlers...)
}

// Purpose: Print the per-handler command availability table.
// Key aspects: '+' marks a handler with private commands.
// Upstream: -L/--list.
// Downstream: driver.Descriptor.CommandLetters.
func listHandlers(w io.Writer, reg *monitor.Registry) {
	fmt.Fprintln(w, "General commands available per type. '+' means there are private commands.")
	for _, h := range reg.Handlers() {
		private := " "
		if h.Command != nil {
			private = "+"
		}
		fmt.Fprintf(w, "%s %s\t%s\n", h.Driver.CommandLetters(), private, h.Name())
	}
}

// Purpose: Resolve -t/--type to exactly one installed handler's driver.
// Key aspects: Prefix match; ambiguity and no match are startup failures.
// Upstream: run.
// Downstream: driver.MatchPrefix.
func resolveType(reg *monitor.Registry, name string) (*driver.Descriptor, error) {
	matches := driver.MatchPrefix(reg.Drivers(), name)
	switch len(matches) {
	case 0:
		return nil, &exitError{code: 1, msg: "-t option didn't match any driver."}
	case 1:
		return matches[0], nil
	}
	return nil, &exitError{code: 1, msg: "-t option matched more than one driver."}
}

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Purpose: Pick the operator surface.
// Key aspects: The dashboard needs an interactive stdout; anything else
// falls back to the headless stream.
// Upstream: run.
// Downstream: newDashboard, newANSIConsole.
func selectUI(opts *options, cfg *config.Config, interrupt func()) uiSurface {
	tty := isStdoutTTY()
	mode := cfg.Monitor.UI
	if opts.noCurses {
		mode = config.UIANSI
	}
	if mode == config.UITview && !tty {
		log.Printf("UI: dashboard requires an interactive console; streaming instead")
		mode = config.UIANSI
	}
	if mode == config.UITview {
		return newDashboard(interrupt)
	}
	return newANSIConsole(os.Stdout, os.Stdin, tty)
}

// Purpose: Render the one-line connection and traffic summary.
// Key aspects: Counters are humanized; the active panel name follows the prompt.
// Upstream: heartbeat and panel switches.
// Downstream: humanize.Comma, humanize.Bytes.
func statusLine(sess *session.Session, active string, tracker *offset.Tracker) string {
	packets, bytes, dropped := sess.Stats()
	var b strings.Builder
	b.WriteString(sess.Prompt())
	if active != "" {
		b.WriteString("  ")
		b.WriteString(active)
	}
	fmt.Fprintf(&b, "  pkts %s  %s", humanize.Comma(int64(packets)), humanize.Bytes(bytes))
	if dropped > 0 {
		fmt.Fprintf(&b, "  noise %s", humanize.Comma(int64(dropped)))
	}
	if tracker != nil {
		if _, pulses := tracker.LastPulse(); pulses > 0 {
			fmt.Fprintf(&b, "  pps %s", humanize.Comma(int64(pulses)))
		}
		if n := tracker.Latches(); n > 0 {
			fmt.Fprintf(&b, "  latches %s", humanize.Comma(int64(n)))
		}
	}
	return b.String()
}

func run(args []string) error {
	opts, fs, err := parseArgs(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		fmt.Fprintf(os.Stderr, "gpsmon: %v\n", err)
		printUsage(os.Stderr, fs)
		return &exitError{code: 1}
	}
	if opts.help {
		printUsage(os.Stderr, fs)
		return nil
	}
	if opts.version {
		fmt.Printf("gpsmon: %s\n", Version)
		return nil
	}
	debugLevel.Store(int32(opts.debug))

	listing, err := buildRegistry(nil)
	if err != nil {
		return err
	}
	if opts.list {
		listHandlers(os.Stdout, listing)
		return nil
	}
	var fallback *driver.Descriptor
	if opts.typeName != "" {
		if fallback, err = resolveType(listing, opts.typeName); err != nil {
			return err
		}
	}

	cfg, cfgSource, err := config.Resolve(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.capture != "" {
		cfg.Capture.Path = opts.capture
	}

	fanout, logErr := setupLogging(cfg.Logging, os.Stderr)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if logErr != nil {
		log.Printf("Logging: %v", logErr)
	}
	debugf(1, "gpsmon %s: configuration from %s", Version, cfgSource)

	ep, err := session.ParseEndpoint(opts.endpoint)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := session.Open(ctx, session.Options{
		Endpoint: ep,
		NMEA:     opts.nmea,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", ep, err)
	}
	debugf(1, "session: opened %s", sess.Prompt())

	registry, err := buildRegistry(sess)
	if err != nil {
		_ = sess.Close()
		return err
	}

	ui := selectUI(opts, cfg, cancel)
	ui.WaitReady()
	fanout.SetConsoleSink(ui.SystemWriter(), true)
	if _, isStream := ui.(*ansiConsole); isStream {
		fmt.Fprintf(os.Stdout, "gpsmon: %s\n", sess.Prompt())
	}

	rep := report.New(ui, cfg.DedupeWindow())
	if opts.logFile != "" {
		if err := rep.OpenLog(opts.logFile, true); err != nil {
			ui.Stop()
			_ = sess.Close()
			return err
		}
	}
	sess.OnWrite = func(data []byte) {
		_, cols := rep.Size()
		rep.Report(">>>" + visualize.RenderConditional(data, false, cols))
	}

	var latchers offset.Latchers
	var rec *recorder.Recorder
	if cfg.Capture.Path != "" {
		rec, err = recorder.NewRecorder(cfg.Capture.Path, cfg.Capture.PerTypeLimit)
		if err != nil {
			log.Printf("Capture disabled: %v", err)
		} else {
			defer rec.Close()
			latchers = append(latchers, rec)
		}
	}
	if cfg.MQTT.Broker != "" {
		pub := publish.New(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID)
		if err := pub.Connect(); err != nil {
			log.Printf("MQTT publishing disabled: %v", err)
		} else {
			defer pub.Close()
			latchers = append(latchers, pub)
		}
	}
	tracker := offset.New(rep, latchers)

	switcher := monitor.NewSwitcher(registry, rep)
	activeName := ""
	switcher.OnSwitch = func(h *monitor.Handler) {
		activeName = h.Name()
		ui.SetStatus(statusLine(sess, activeName, tracker))
	}

	proc := commands.NewProcessor(sess, switcher, rep, registry.Drivers())
	proc.SetSettle(cfg.SettleDelay())
	proc.SetFallback(fallback)

	hook := &eventloop.PacketHook{
		Source:   sess,
		Switcher: switcher,
		Reporter: rep,
		Tracker:  tracker,
		Width: func() int {
			_, cols := rep.Size()
			return cols
		},
	}
	if rec != nil {
		hook.Recorder = rec
	}

	loopOpts := eventloop.Options{
		Device:   sess,
		Hook:     hook,
		Panels:   switcher,
		Commands: proc,
		Input:    ui.Input(),
		Wait:     cfg.WaitTimeout(),
		Heartbeat: func() {
			ui.SetStatus(statusLine(sess, activeName, tracker))
		},
		Log:      rep,
		Restore:  ui.Stop,
		Announce: announce,
	}
	if cfg.PPS.Device != "" && sess.LowLevel() {
		watcher := pps.New(cfg.PPS.Device, tracker)
		if err := watcher.Activate(); err != nil {
			log.Printf("PPS disabled: %v", err)
		} else {
			loopOpts.PPS = watcher
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			debugf(1, "Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	ui.SetStatus(statusLine(sess, activeName, tracker))
	started := time.Now()
	cause, err := eventloop.New(loopOpts).Run(ctx)
	fanout.SetConsoleSink(os.Stderr, true)
	if err != nil {
		if errors.Is(err, eventloop.ErrInvariant) {
			ui.Stop()
			return &exitError{code: 1, msg: "gpsmon: assertion failure, probable I/O error"}
		}
		return err
	}
	debugf(1, "gpsmon: %s after %s", cause, time.Since(started).Round(time.Second))
	return nil
}
