package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/tebeka/atexit"
	"gitlab.com/akita/akita/v3/sim"

	"github.com/sarchlab/renosim"
	"github.com/sarchlab/renosim/linkmodel"
	"github.com/sarchlab/renosim/tcpflow"
	"github.com/sarchlab/renosim/timemodel"
)

var bandwidthMbps = flag.Float64("bandwidth", 10,
	"The bandwidth of the link in Mbps.")
var delayMs = flag.Float64("delay", 25,
	"The one-way propagation delay of the link in ms.")
var lossProb = flag.Float64("loss", 0.01,
	"The per-delivery loss probability of the link.")
var appKiB = flag.Int("kib", 200,
	"The amount of application data to transfer in KiB.")
var trials = flag.Int("trials", 1,
	"The number of trials to run. Each trial advances the seed by one.")
var seed = flag.Int64("seed", linkmodel.DefaultSeed,
	"The seed of the loss process of the first trial.")
var timeCap = flag.Float64("time-cap", 300,
	"The watchdog deadline in simulated seconds.")
var csvPath = flag.String("csv", "",
	"Write per-trial results to this CSV file.")
var pprofAddr = flag.String("pprof", "",
	"Serve pprof on this address, e.g. localhost:6060.")

func main() {
	flag.Parse()
	log.SetHandler(json.New(os.Stderr))

	if *pprofAddr != "" {
		go func() {
			fmt.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	start := time.Now()
	results := runTrials()
	elapsed := time.Since(start)

	report(results)
	if *csvPath != "" {
		writeCSV(results)
	}

	fmt.Printf("Program Execution time: %s\n", elapsed)
	atexit.Exit(0)
}

func runTrials() []renosim.RunResult {
	results := make([]renosim.RunResult, 0, *trials)

	for trial := 0; trial < *trials; trial++ {
		cfg := tcpflow.Config{
			BandwidthBps: *bandwidthMbps * 1e6,
			PropDelay:    sim.VTimeInSec(*delayMs / 1e3),
			LossProb:     *lossProb,
			AppBytes:     *appKiB << 10,
			Seed:         *seed + int64(trial),
			TimeCap:      sim.VTimeInSec(*timeCap),
		}

		simulation := tcpflow.NewSimulation(cfg)
		simulation.Start()
		if err := simulation.Run(); err != nil {
			log.WithError(err).Fatal("simulation failed")
		}

		r := simulation.Result()
		log.WithFields(log.Fields{
			"trial":           trial,
			"seed":            cfg.Seed,
			"completed":       r.Completed,
			"finish_time_s":   float64(r.FinishTime),
			"retransmits":     r.Retransmits,
			"packets_sent":    r.PacketsSent,
			"packets_dropped": r.PacketsDropped,
			"throughput_mbps": r.ThroughputBps() / 1e6,
		}).Info("trial finished")

		results = append(results, r)
	}

	return results
}

func report(results []renosim.RunResult) {
	if len(results) == 1 {
		reportSingle(results[0])
		return
	}

	var summary renosim.Summary
	for _, r := range results {
		summary.Add(r)
	}

	fmt.Printf("Trials: %d, completed: %d\n",
		summary.Trials, summary.Completed)
	fmt.Printf("Finish time s: mean=%.3f std=%.3f min=%.3f max=%.3f\n",
		summary.FinishTime.Mean(), summary.FinishTime.StdDev(),
		summary.FinishTime.Min(), summary.FinishTime.Max())
	fmt.Printf("Throughput Mbps: mean=%.3f std=%.3f\n",
		summary.ThroughputMbps.Mean(), summary.ThroughputMbps.StdDev())
	fmt.Printf("Retransmits: mean=%.1f max=%.0f\n",
		summary.Retransmits.Mean(), summary.Retransmits.Max())
	fmt.Printf("Packets dropped: mean=%.1f\n",
		summary.PacketsDropped.Mean())
}

func reportSingle(r renosim.RunResult) {
	estimator := &timemodel.LossFreeTimeEstimator{}
	ideal, err := estimator.Estimate(timemodel.TimeEstimatorInput{
		AppBytes:     r.AppBytes,
		MSS:          1000,
		HeaderBytes:  40,
		BandwidthBps: *bandwidthMbps * 1e6,
		PropDelayS:   *delayMs / 1e3,
	})
	if err != nil {
		log.WithError(err).Fatal("time estimation failed")
	}

	fmt.Printf("Simulation finished at t=%.3f s (completed=%v)\n",
		float64(r.FinishTime), r.Completed)
	fmt.Printf("Data: %d bytes, retransmits=%d\n", r.AppBytes, r.Retransmits)
	fmt.Printf("Segments sent=%d, packets sent=%d, dropped=%d\n",
		r.SegmentsSent, r.PacketsSent, r.PacketsDropped)
	fmt.Printf("cwnd=%d ssthresh=%d RTO=%.3fs\n",
		r.Cwnd, r.Ssthresh, float64(r.RTO))
	fmt.Printf("Throughput=%.3f Mbps, utilization=%.1f%%\n",
		r.ThroughputBps()/1e6, 100*r.ThroughputBps()/(*bandwidthMbps*1e6))
	fmt.Printf("Loss-free estimate=%.3f s\n", ideal.TimeInSec)
}

func writeCSV(results []renosim.RunResult) {
	f, err := os.Create(*csvPath)
	if err != nil {
		log.WithError(err).Fatal("cannot create CSV file")
	}
	defer f.Close()

	if err := renosim.WriteResultsCSV(f, results); err != nil {
		log.WithError(err).Fatal("cannot write CSV file")
	}
}
