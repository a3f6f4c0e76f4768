// devtest pokes at pad hardware without starting the full app
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"

	"go-inkdeck/action"
	"go-inkdeck/config"
	"go-inkdeck/device"
	"go-inkdeck/inkkeys"
	"go-inkdeck/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "detect":
		err = detect(ctx)
	case "leds":
		err = testLEDs(ctx)
	case "serial":
		if len(os.Args) < 3 {
			usage()
			return
		}
		baud := 115200
		if len(os.Args) > 3 {
			if baud, err = strconv.Atoi(os.Args[3]); err != nil {
				break
			}
		}
		err = testSerial(ctx, os.Args[2], baud)
	case "config":
		path := ""
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		err = showConfig(config.Find(path))
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Pad test scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list              - List all MIDI ports")
	fmt.Println("  detect            - Watch for Launchpads coming and going")
	fmt.Println("  leds              - Run a colour sweep on the emulated LED strip")
	fmt.Println("  serial PORT [BAUD] - Draw a test screen on a serial pad and print its events")
	fmt.Println("  config [PATH]     - Load a config and list its modes")
}

func listPorts() error {
	fmt.Println("(waiting up to 3 seconds...)")
	ports, ok := midi.NewDeviceManager().ListPorts()
	if !ok {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return nil
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ports.In {
		fmt.Printf("  %d: %s\n", i, p)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range ports.Out {
		fmt.Printf("  %d: %s\n", i, p)
	}
	return nil
}

func detect(ctx context.Context) error {
	fmt.Println("Connect/disconnect a Launchpad to test. Ctrl+C to exit.")
	dm := midi.NewDeviceManager()
	go dm.Run(ctx)
	for ev := range dm.Events() {
		stamp := time.Now().Format("15:04:05")
		switch ev.Type {
		case midi.DeviceConnected:
			fmt.Printf("[%s] connected: %s (%s)\n", stamp, ev.ID, ev.Controller.Type())
		case midi.DeviceDisconnected:
			fmt.Printf("[%s] disconnected: %s\n", stamp, ev.ID)
		}
	}
	return nil
}

func testLEDs(ctx context.Context) error {
	fmt.Println("Sweeping the LED strip across the bottom rows. Ctrl+C to exit.")
	lp := midi.NewLaunchpadSession(device.DefaultLayout, nil)
	dm := midi.NewDeviceManager()
	go dm.Run(ctx)
	go lp.Run(ctx, dm)

	from, to := colorful.Color{B: 1}, colorful.Color{R: 1}
	n := lp.LEDs.Len()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for frame := 0; ; frame++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		colors := make([]colorful.Color, n)
		for i := range colors {
			t := float64((i+frame)%n) / float64(n-1)
			colors[i] = from.BlendHcl(to, t).Clamped()
		}
		lp.SetLeds(colors)
	}
}

func testSerial(ctx context.Context, port string, baud int) error {
	s, err := inkkeys.Dial(ctx, port, baud, device.DefaultLayout)
	if err != nil {
		return err
	}
	defer s.Close()

	s.SetText(device.RegionTitle, "devtest", true)
	for n := 2; n <= device.DefaultLayout.Buttons; n++ {
		s.SetText(device.Button(n), fmt.Sprintf("SW%d", n), false)
	}
	if err := s.Flush(); err != nil {
		return err
	}
	s.SetLeds([]colorful.Color{{G: 1}})

	for _, in := range action.Inputs(device.DefaultLayout.Buttons) {
		s.RegisterCallback(in, func() {
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05.000"), in)
		})
	}
	fmt.Println("Press buttons or turn the dial. Ctrl+C to exit.")
	<-ctx.Done()
	return nil
}

func showConfig(path string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load(path, logger.Sugar())
	if err != nil {
		return err
	}
	src := cfg.Path
	if src == "" {
		src = "(built-in)"
	}
	fmt.Printf("config:    %s\n", src)
	fmt.Printf("transport: %s %s\n", cfg.Device.Transport, cfg.Device.Port)
	fmt.Printf("layout:    %d buttons, %d LEDs\n", cfg.Device.Buttons, cfg.Device.LEDs)
	fmt.Printf("fallback:  %s\n", cfg.Selector.Fallback)
	for _, m := range cfg.Modes {
		fmt.Printf("  %-10s %-7s match=%v\n", m.Name, m.Kind, m.Match)
	}
	return nil
}
