// Command basic-control moves the arm to a single joint-position
// target and reads the resulting robot state.
//
// Usage: PERSEUS_ADDR=192.168.1.20 go run ./cmd/basic-control
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/wisson-robotics/go-perseus/internal/config"
	"github.com/wisson-robotics/go-perseus/internal/log"
	"github.com/wisson-robotics/go-perseus/pkg/command"
	"github.com/wisson-robotics/go-perseus/pkg/control"
	"github.com/wisson-robotics/go-perseus/pkg/robot"
	"github.com/wisson-robotics/go-perseus/pkg/state"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	log.Init(cfg.Log.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	r, err := robot.Connect(ctx, cfg)
	if err != nil {
		log.Error("failed to connect", "err", err)
		os.Exit(1)
	}
	defer r.Close()

	desired := [state.JointCount]float64{0.4280, 30.0, 40.0, -1.0, 2.0, 30.0, 30.0, 30.0, 5.0}
	motion, err := command.NewMotion(desired, 10*time.Second)
	if err != nil {
		log.Error("failed to build motion command", "err", err)
		os.Exit(1)
	}
	seq, err := command.NewSingle(motion)
	if err != nil {
		log.Error("failed to build sequence", "err", err)
		os.Exit(1)
	}

	if err := r.ControlAndWait(ctx, control.JointPosition(), seq); err != nil {
		log.Error("motion failed", "err", err)
		os.Exit(1)
	}
	log.Info("motion completed", "cmd_id", seq.ID(), "status", seq.Status().String())

	snapshot, err := r.ReadOnce(ctx)
	if err != nil {
		log.Error("failed to read robot state", "err", err)
		os.Exit(1)
	}
	log.Info("current pressure", "pressure", snapshot.Pressure, "mode", snapshot.Mode.String())
}
