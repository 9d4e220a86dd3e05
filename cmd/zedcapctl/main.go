// zedcapctl is the control CLI for zedcapd.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"zedcapd/internal/camera"
	"zedcapd/internal/config"
	"zedcapd/internal/ipc"
)

var socketPath = flag.String("socket", "", "path to the daemon control socket")

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	client, err := dial()
	if err != nil {
		fmt.Fprintln(os.Stderr, "zedcapctl:", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := dispatch(client, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "zedcapctl:", err)
		os.Exit(1)
	}
}

func dial() (*ipc.Client, error) {
	path := *socketPath
	if path == "" {
		path = config.DefaultConfig().IPC.SocketPath
	}
	return ipc.Dial(path)
}

func dispatch(client *ipc.Client, cmd string, args []string) error {
	switch cmd {
	case "ping":
		if err := client.Ping(); err != nil {
			return err
		}
		fmt.Println("daemon is up")
		return nil

	case "status":
		return cmdStatus(client)

	case "start":
		return client.StartSession()

	case "stop":
		return client.StopSession()

	case "pause":
		return client.PauseSession()

	case "resume":
		return client.ResumeSession()

	case "capture":
		return cmdCapture(client)

	case "list":
		return cmdList(client, args)

	case "policy":
		return cmdPolicy(client, args)

	case "settings":
		return cmdSettings(client, args)

	case "reset":
		return client.ResetFault()

	case "video":
		return cmdVideo(client, args)

	case "help", "-h", "--help":
		usage()
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func cmdStatus(client *ipc.Client) error {
	status, err := client.Status()
	if err != nil {
		return err
	}

	fmt.Printf("zedcapd %s, up %s\n", status.Version, status.Uptime.Round(time.Second))
	fmt.Printf("session:     %s\n", status.Session)
	fmt.Printf("controller:  %s\n", status.Controller.State)
	if status.Controller.Policy != nil {
		fmt.Printf("policy:      %s\n", status.Controller.Policy)
	}
	fmt.Printf("captures:    %d (last sequence %d)\n",
		status.Controller.CaptureCount, status.Controller.Sequence)
	if !status.Controller.LastCaptureAt.IsZero() {
		fmt.Printf("last:        %s\n", status.Controller.LastCaptureAt.Format(time.RFC3339))
	}
	if status.Controller.LastError != "" {
		fmt.Printf("last error:  %s\n", status.Controller.LastError)
	}

	switch {
	case status.GPS != nil && status.GPS.Valid():
		fmt.Printf("gps:         %s fix at %.6f, %.6f (%.1fm since last capture)\n",
			status.GPS.Quality, status.GPS.Lat, status.GPS.Lon, status.Controller.DistanceMeters)
	case status.GPSConnected:
		fmt.Println("gps:         connected, no fix")
	default:
		fmt.Println("gps:         not connected")
	}
	if status.Controller.GPSWaiting {
		fmt.Println("             distance captures withheld until fix returns")
	}

	if status.Recording != nil {
		fmt.Printf("recording:   %s since %s\n",
			status.Recording.ID, status.Recording.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func cmdCapture(client *ipc.Client) error {
	rec, err := client.SingleShot()
	if err != nil {
		return err
	}
	fmt.Printf("captured sequence %d\n", rec.Sequence)
	for view, path := range rec.Image.Paths {
		fmt.Printf("  %-12s %s\n", view, path)
	}
	return nil
}

func cmdList(client *ipc.Client, args []string) error {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	recs, err := client.ListCaptures(limit)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		gps := "no fix"
		if rec.GPS != nil && rec.GPS.Valid() {
			gps = fmt.Sprintf("%.6f, %.6f", rec.GPS.Lat, rec.GPS.Lon)
		}
		fmt.Printf("%6d  %s  %-8s  %s\n",
			rec.Sequence, rec.CapturedAt.Format(time.RFC3339), rec.Trigger, gps)
	}
	return nil
}

func cmdPolicy(client *ipc.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: zedcapctl policy time <seconds> | distance <meters>")
	}

	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q", args[1])
	}

	req := ipc.SetPolicyRequest{Policy: args[0]}
	switch args[0] {
	case "time":
		req.IntervalSeconds = value
	case "distance":
		req.Meters = value
	default:
		return fmt.Errorf("unknown policy %q, want time or distance", args[0])
	}

	if err := client.SetPolicy(req); err != nil {
		return err
	}
	fmt.Println("policy set")
	return nil
}

func cmdSettings(client *ipc.Client, args []string) error {
	settings, err := client.Settings()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		out, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	// key=value pairs update the active settings.
	for _, arg := range args {
		if err := applySettingArg(&settings, arg); err != nil {
			return err
		}
	}
	if err := client.ApplySettings(settings); err != nil {
		return err
	}
	fmt.Println("settings applied")
	return nil
}

func applySettingArg(s *camera.Settings, arg string) error {
	key, value, found := strings.Cut(arg, "=")
	if !found {
		return fmt.Errorf("invalid setting %q, want key=value", arg)
	}

	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %q", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "mode":
		s.Mode = camera.Mode(value)
	case "resolution":
		s.Resolution = value
	case "fps":
		s.FPS, err = atoi()
	case "brightness":
		s.Brightness, err = atoi()
	case "contrast":
		s.Contrast, err = atoi()
	case "hue":
		s.Hue, err = atoi()
	case "saturation":
		s.Saturation, err = atoi()
	case "exposure":
		s.Exposure, err = atoi()
	case "gain":
		s.Gain, err = atoi()
	case "white_balance":
		s.WhiteBalance, err = atoi()
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return err
}

func cmdVideo(client *ipc.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: zedcapctl video start [codec] | stop")
	}

	switch args[0] {
	case "start":
		req := ipc.VideoStartRequest{}
		if len(args) > 1 {
			req.Codec = args[1]
		}
		info, err := client.StartVideo(req)
		if err != nil {
			return err
		}
		fmt.Printf("recording %s -> %s\n", info.ID, info.Path)
		return nil

	case "stop":
		info, err := client.StopVideo()
		if err != nil {
			return err
		}
		fmt.Printf("recording %s finalized, %s\n",
			info.ID, info.StoppedAt.Sub(info.StartedAt).Round(time.Second))
		return nil

	default:
		return fmt.Errorf("unknown video action %q", args[0])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `zedcapctl - control utility for zedcapd

Usage: zedcapctl [options] <command> [args]

Commands:
  ping                    Check daemon liveness
  status                  Show session, controller, and GPS status
  start                   Start the capture session
  stop                    Stop the capture session
  pause                   Pause the capture session
  resume                  Resume a paused session
  capture                 Take one immediate capture
  list [n]                Show the n most recent captures (default 10)
  policy time <seconds>   Switch to time-based triggering
  policy distance <m>     Switch to distance-based triggering
  settings [key=value...] Show or update camera settings
  reset                   Clear a faulted controller
  video start [codec]     Start an SVO recording
  video stop              Stop the active recording
  help                    Show this help message

Options:
  -socket <path>  Control socket path (default: data dir socket)`)
}
