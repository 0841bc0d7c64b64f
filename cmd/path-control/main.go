// Command path-control runs a two-waypoint joint path followed by an
// end-effector open/force-close sequence.
//
// Usage: PERSEUS_ADDR=192.168.1.20 go run ./cmd/path-control
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

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	r, err := robot.Connect(ctx, cfg)
	if err != nil {
		log.Error("failed to connect", "err", err)
		os.Exit(1)
	}
	defer r.Close()

	if err := runJointPath(ctx, r); err != nil {
		log.Error("joint path failed", "err", err)
		os.Exit(1)
	}

	if err := runGripperSequence(ctx, r); err != nil {
		log.Error("gripper sequence failed", "err", err)
		os.Exit(1)
	}
}

func runJointPath(ctx context.Context, r *robot.Robot) error {
	joint1 := [state.JointCount]float64{0.4280, 30.0, 40.0, -1.0, 2.0, 30.0, 30.0, 30.0, 5.0}
	joint2 := [state.JointCount]float64{0.4280, 30.0, 40.0, -1.0, 2.0, 30.0, 30.0, 0.0, 35.0}

	waypoint1, err := command.NewMotion(joint1, 5*time.Second)
	if err != nil {
		return err
	}
	waypoint2, err := command.NewMotion(joint2, 5*time.Second)
	if err != nil {
		return err
	}

	seq, err := command.NewSequence([]command.Step{waypoint1, waypoint2}, 30*time.Second)
	if err != nil {
		return err
	}

	if err := r.ControlAndWait(ctx, control.JointPosition(), seq); err != nil {
		return err
	}
	log.Info("joint path completed", "cmd_id", seq.ID(), "waypoints", seq.Len())
	return nil
}

func runGripperSequence(ctx context.Context, r *robot.Robot) error {
	open, err := command.NewEndEffector(command.ActionOpen, 5*time.Second)
	if err != nil {
		return err
	}
	forceClose, err := command.NewEndEffector(command.ActionForceClose, 5*time.Second)
	if err != nil {
		return err
	}

	seq, err := command.NewSequence([]command.Step{open, forceClose}, 30*time.Second)
	if err != nil {
		return err
	}

	if err := r.ControlAndWait(ctx, control.TaskCommand(), seq); err != nil {
		return err
	}
	log.Info("gripper sequence completed", "cmd_id", seq.ID(), "actions", seq.EndEffectorActions())
	return nil
}
