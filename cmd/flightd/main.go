package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/downlink.go/pkg/buffer"
	"github.com/robotalks/downlink.go/pkg/config"
	"github.com/robotalks/downlink.go/pkg/downlink"
	"github.com/robotalks/downlink.go/pkg/frame"
	fx "github.com/robotalks/downlink.go/pkg/framework"
	"github.com/robotalks/downlink.go/pkg/link"
	"github.com/robotalks/downlink.go/pkg/link/mqtt"
	"github.com/robotalks/downlink.go/pkg/msgs"
	"github.com/robotalks/downlink.go/pkg/nvstore"
	"github.com/robotalks/downlink.go/pkg/radio"
	"github.com/robotalks/downlink.go/pkg/radio/sink"
)

// Queue depths of the worker tasks.
const (
	producerQueueDepth = 4
	drainQueueDepth    = 16
)

func init() {
	config.SetupFlags()
}

func openStore(path string) downlink.ConfigStore {
	if path == "" {
		glog.Warning("no persistent store, flags are kept in memory")
		return nvstore.NewMemory()
	}
	store, err := nvstore.OpenFile(path)
	if err != nil {
		log.Fatalln(err)
	}
	return store
}

func main() {
	flag.Parse()
	conf := config.NewConfig().MustLoad()

	symbols, err := sink.Open(conf.SinkURL)
	if err != nil {
		log.Fatalln(err)
	}
	defer symbols.Close()

	src := frame.NewSampleSource(conf.SpacecraftID, conf.ResetCount)
	sim := radio.NewSim(conf.Radio, symbols)

	drainTask := fx.NewTask("drain", drainQueueDepth)
	drain := &radio.Drain{FIFO: sim, Queue: drainTask}
	drainTask.Handler = drain
	sim.OnIRQ = drain.Interrupt

	buffers := buffer.NewManager(nil, drain)
	drain.Buffers = buffers

	producerTask := fx.NewTask("producer", producerQueueDepth)
	producer := downlink.NewProducer(buffers, src)
	producer.Queue = producerTask
	producerTask.Handler = producer
	buffers.Requester = producer

	watchdog := fx.NewWatchdog(conf.Timing.CollectPeriod * 5)

	m := downlink.NewMachine("downlink", conf.Timing)
	m.Radio = sim
	m.Store = openStore(conf.StorePath)
	m.Buffers = buffers
	m.Producer = producer
	m.Collector = src
	m.Watchdog = watchdog
	halfDuplex := conf.HalfDuplex
	m.Partner = downlink.PartnerFunc(func() bool { return !halfDuplex })
	producer.Mode = m.Mode
	drain.Notifier = radio.FrameCompleteFunc(m.FrameComplete)

	notifiers := link.NotifierMux{
		downlink.StateChangedFunc(func(st downlink.Status) {
			glog.Infof("downlink: %v on %v", st, st.Event)
		}),
	}

	runner := fx.NewRunner().HandleSignals()
	if conf.LinkURL != "" {
		ep, err := mqtt.NewEndpoint(conf.LinkURL, conf.NodeInfo(), m)
		if err != nil {
			log.Fatalln(err)
		}
		ep.Stats = func(s *msgs.DownlinkStatus) {
			stats := buffers.Stats()
			s.Filled, s.Drained = stats.Filled, stats.Drained
			s.Discarded, s.FillRefused = stats.Discarded, stats.FillRefused
			s.Words = drain.Words()
		}
		notifiers = append(notifiers, ep)
		runner.Go(ep)
		glog.Infof("link %s as %s, session %s", conf.LinkURL, conf.NodeInfo().Ref.Name(), ep.Session)
	}
	m.Notifier = notifiers

	start := time.Now()
	runner.Go(sim, drainTask, producerTask, watchdog, m)
	err = runner.Wait()
	glog.Infof("stopped after %v, %d words sent", time.Since(start), sim.Sent())
	glog.Flush()
	if err != nil {
		log.Fatalln(err)
	}
}
