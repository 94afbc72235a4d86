/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command clocksyncd synchronizes a slave clock to a master clock or PPS
// signal, riding on top of an external PTP daemon's management channel
// for grandmaster tracking.
package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/clocksyncd/clocksyncd/clockadj"
	"github.com/clocksyncd/clocksyncd/config"
	"github.com/clocksyncd/clocksyncd/leap"
	"github.com/clocksyncd/clocksyncd/phc"
	"github.com/clocksyncd/clocksyncd/pmc"
	"github.com/clocksyncd/clocksyncd/servo"
	"github.com/clocksyncd/clocksyncd/stats"
	"github.com/clocksyncd/clocksyncd/sync"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	var (
		slaveClock  string
		ppsDevice   string
		masterClock string
		iface       string
		kp          float64
		ki          float64
		stepThresh  float64
		rateHz      int
		nReadings   int
		forcedOff   int
		statsWindow int
		waitSync    bool
		softLeap    bool
		verbose     bool
		noSyslog    bool
		logLevel    string
		cfgPath     string
		pprofAddr   string
		metricsAddr string
		showVersion bool
	)

	flag.StringVar(&slaveClock, "c", "CLOCK_REALTIME", "slave clock: device path or CLOCK_REALTIME")
	flag.StringVar(&ppsDevice, "d", "", "PPS device (enables PPS loop)")
	flag.StringVar(&masterClock, "s", "", "master clock: device path or CLOCK_REALTIME")
	flag.StringVar(&iface, "i", "", "interface name to auto-discover the master PHC")
	flag.Float64Var(&kp, "P", servo.DefaultConfig().KP, "PI proportional gain")
	flag.Float64Var(&ki, "I", servo.DefaultConfig().KI, "PI integral gain")
	flag.Float64Var(&stepThresh, "S", 0, "step threshold in ns, 0 disables")
	flag.IntVar(&rateHz, "R", 1, "slave clock update rate in Hz")
	flag.IntVar(&nReadings, "N", 5, "master clock readings per sample")
	flag.IntVar(&forcedOff, "O", 0, "forced sync offset in seconds, direction -1")
	flag.IntVar(&statsWindow, "u", 0, "stats batch window size, 0 disables")
	flag.BoolVar(&waitSync, "w", false, "wait for the external PTP daemon via management")
	flag.BoolVar(&softLeap, "x", false, "fold leap seconds into the servo offset instead of the kernel")
	flag.StringVar(&logLevel, "l", "info", "log level")
	flag.BoolVar(&verbose, "m", false, "verbose logging to stderr")
	flag.BoolVar(&noSyslog, "q", false, "disable syslog output")
	flag.StringVar(&cfgPath, "f", "", "optional YAML config file of flag defaults")
	flag.StringVar(&pprofAddr, "pprof", "", "if set, serve net/http/pprof on this address")
	flag.StringVar(&metricsAddr, "metricsport", "", "if set, serve Prometheus metrics on this address")
	flag.BoolVar(&showVersion, "v", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "clocksyncd: synchronize a clock to a master clock or PPS signal\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	if cfgPath != "" {
		cfgFile, err := config.Load(cfgPath)
		if err != nil {
			log.Fatal(err)
		}
		applyConfigFile(cfgFile, &flagsSeen{
			slaveClock: &slaveClock, ppsDevice: &ppsDevice, masterClock: &masterClock, iface: &iface,
			kp: &kp, ki: &ki, stepThresh: &stepThresh, rateHz: &rateHz, nReadings: &nReadings,
			forcedOff: &forcedOff, statsWindow: &statsWindow, waitSync: &waitSync, softLeap: &softLeap,
			verbose: &verbose, noSyslog: &noSyslog, metricsAddr: &metricsAddr, pprofAddr: &pprofAddr,
			logLevel: &logLevel,
		})
		// Parse the command line again so flags given explicitly keep
		// their command-line values over the config file's.
		if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
			log.Fatal(err)
		}
	}

	if lvl, err := log.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}
	if verbose {
		log.SetOutput(os.Stderr)
	}
	if noSyslog {
		log.Debug("syslog output disabled")
	}

	if pprofAddr != "" {
		go func() {
			log.Warnf("pprof listener exited: %v", http.ListenAndServe(pprofAddr, nil))
		}()
	}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Warnf("metrics listener exited: %v", http.ListenAndServe(metricsAddr, mux))
		}()
	}

	if err := run(slaveClock, ppsDevice, masterClock, iface, kp, ki, stepThresh, rateHz, nReadings, forcedOff, statsWindow, waitSync, softLeap); err != nil {
		log.Fatal(err)
	}
}

// flagsSeen is the subset of flags a config file may default, passed by
// pointer so applyConfigFile can write the file's values into them; main
// then parses the command line again, so explicitly passed flags win.
type flagsSeen struct {
	slaveClock, ppsDevice, masterClock, iface                   *string
	kp, ki, stepThresh                                          *float64
	rateHz, nReadings, forcedOff, statsWindow                   *int
	waitSync, softLeap, verbose, noSyslog                       *bool
	metricsAddr, pprofAddr, logLevel                            *string
}

func applyConfigFile(f *config.File, flags *flagsSeen) {
	if f.SlaveClock != nil && *flags.slaveClock == "CLOCK_REALTIME" {
		*flags.slaveClock = *f.SlaveClock
	}
	if f.PPSDevice != nil && *flags.ppsDevice == "" {
		*flags.ppsDevice = *f.PPSDevice
	}
	if f.MasterClock != nil && *flags.masterClock == "" {
		*flags.masterClock = *f.MasterClock
	}
	if f.Interface != nil && *flags.iface == "" {
		*flags.iface = *f.Interface
	}
	if f.KP != nil {
		*flags.kp = *f.KP
	}
	if f.KI != nil {
		*flags.ki = *f.KI
	}
	if f.StepThreshold != nil {
		*flags.stepThresh = *f.StepThreshold
	}
	if f.UpdateRateHz != nil {
		*flags.rateHz = *f.UpdateRateHz
	}
	if f.ReadingsPerSample != nil {
		*flags.nReadings = *f.ReadingsPerSample
	}
	if f.ForcedOffset != nil {
		*flags.forcedOff = int(*f.ForcedOffset)
	}
	if f.StatsWindow != nil {
		*flags.statsWindow = *f.StatsWindow
	}
	if f.WaitSync != nil {
		*flags.waitSync = *f.WaitSync
	}
	if f.SoftLeap != nil {
		*flags.softLeap = *f.SoftLeap
	}
	if f.MetricsAddr != nil {
		*flags.metricsAddr = *f.MetricsAddr
	}
	if f.PprofAddr != nil {
		*flags.pprofAddr = *f.PprofAddr
	}
	if f.Verbose != nil {
		*flags.verbose = *f.Verbose
	}
	if f.NoSyslog != nil {
		*flags.noSyslog = *f.NoSyslog
	}
	if f.LogLevel != nil {
		*flags.logLevel = *f.LogLevel
	}
}

// openClock opens spec, a device path or "CLOCK_REALTIME", returning a
// clockadj.Clock and whether the resolved clock is the real-time clock.
func openClock(spec, label string) (*clockadj.Clock, *phc.Device, bool, error) {
	if strings.EqualFold(spec, "CLOCK_REALTIME") {
		return clockadj.New(unix.CLOCK_REALTIME, label), nil, true, nil
	}
	dev, err := phc.Open(spec)
	if err != nil {
		return nil, nil, false, fmt.Errorf("opening %s clock %s: %w", label, spec, err)
	}
	return clockadj.New(dev.ClockID(), label), dev, false, nil
}

func run(slaveSpec, ppsPath, masterSpec, iface string, kp, ki, stepThresh float64, rateHz, nReadings, forcedOffSec, statsWindow int, waitSync, softLeap bool) error {
	if masterSpec == "" && iface != "" {
		discovered, err := phc.IfaceToPHCDevice(iface)
		if err != nil {
			return fmt.Errorf("auto-discovering master PHC for %s: %w", iface, err)
		}
		masterSpec = discovered
	}

	if err := sync.ValidatePreconditions(ppsPath != "", strings.EqualFold(slaveSpec, "CLOCK_REALTIME"), masterSpec != "" || ppsPath != ""); err != nil {
		return err
	}

	slaveClock, slaveDev, slaveIsRTC, err := openClock(slaveSpec, "slave")
	if err != nil {
		return err
	}
	defer func() {
		if slaveDev != nil {
			slaveDev.Close()
		}
	}()

	cfg := servo.DefaultConfig()
	cfg.KP = kp
	cfg.KI = ki
	cfg.FirstStepThreshold = int64(stepThresh)
	cfg.StepThreshold = int64(stepThresh)
	if maxFreq, _, err := clockadj.MaxFreqPPB(slaveClock.ClockID()); err == nil {
		cfg.MaxFreqPPB = maxFreq
	} else {
		log.Warnf("reading slave clock max frequency, using default %v ppb: %v", cfg.MaxFreqPPB, err)
	}

	ctx, err := sync.NewContext(slaveClock, "clocksyncd", cfg)
	if err != nil {
		return err
	}
	ctx.IsRTC = slaveIsRTC
	ctx.KernelLeap = !softLeap

	if statsWindow > 0 {
		ctx.OffsetStats = stats.NewTracker(statsWindow)
	}

	if leapTable, err := leap.Load(); err != nil {
		log.Warnf("loading leap second table: %v", err)
	} else {
		ctx.LeapTable = leapTable
	}

	var masterClock *clockadj.Clock
	var masterDev *phc.Device
	var masterIsRTC bool
	if masterSpec != "" {
		masterClock, masterDev, masterIsRTC, err = openClock(masterSpec, "master")
		if err != nil {
			return err
		}
		defer func() {
			if masterDev != nil {
				masterDev.Close()
			}
		}()
	}
	ctx.MasterIsRTC = masterIsRTC

	var transport *pmc.UnixTransport
	if waitSync {
		transport, err = pmc.DialUnix("/var/run/phc2sys")
		if err != nil {
			return fmt.Errorf("opening management transport: %w", err)
		}
		ctx.PMC = pmc.New(transport, pmc.PortIdentity{ClockIdentity: pmc.ClockIdentity(os.Getpid())})
		ctx.PMCWaitSync = true
		ctx.PMCGetUTCOffset = true
		if err := ctx.WaitSync(); err != nil {
			transport.Close()
			return fmt.Errorf("waiting for external daemon sync: %w", err)
		}
	}

	var forcedOffset *int64
	if forcedOffSec != 0 {
		v := int64(forcedOffSec)
		forcedOffset = &v
	}
	if closeManagement := ctx.Boot(forcedOffset); closeManagement && transport != nil {
		transport.Close()
		ctx.PMC = nil
	}

	stop := make(chan struct{})

	hasPPS := ppsPath != ""
	sysoffSupported := false
	if slaveIsRTC && masterDev != nil {
		if _, probeErr := masterDev.ReadSysoffExtended(1); probeErr == nil {
			sysoffSupported = true
		}
	}
	mode := sync.SelectMode(hasPPS, slaveIsRTC, sysoffSupported)
	log.Infof("clocksyncd %s: starting %s loop", version, mode)

	switch mode {
	case sync.ModePPS:
		ppsDev, err := phc.OpenReadOnly(ppsPath)
		if err != nil {
			return fmt.Errorf("opening PPS device: %w", err)
		}
		const ppsPinIndex = 0
		var srcID, refID *int32
		if masterClock != nil {
			s := masterClock.ClockID()
			r := slaveClock.ClockID()
			srcID, refID = &s, &r
		}
		return ctx.PPSLoop(ppsDev, ppsPinIndex, srcID, refID, nReadings, stop)
	case sync.ModeSysoff:
		return ctx.SysoffLoop(masterDev, uint32(nReadings), rateHz, stop)
	default:
		if masterClock == nil {
			return fmt.Errorf("phc loop requires a master clock")
		}
		return ctx.PHCLoop(masterClock.ClockID(), slaveClock.ClockID(), nReadings, rateHz, stop)
	}
}

