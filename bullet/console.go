package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/itohio/gobullet/pkg/config"
	"github.com/itohio/gobullet/pkg/frame"
	"github.com/itohio/gobullet/pkg/roaster"
	"github.com/itohio/gobullet/pkg/sample"
)

// console is the interactive command loop. A background poll keeps the cache
// fresh between commands; mu serializes it with the commands so the session is
// only ever driven by one goroutine at a time.
type console struct {
	s    *roaster.Session
	cfg  *config.Config
	unit sample.Unit
	log  *slog.Logger
	rl   *readline.Instance

	mu sync.Mutex
}

func newConsole(s *roaster.Session, cfg *config.Config, unit sample.Unit, log *slog.Logger) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bullet> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &console{
		s:    s,
		cfg:  cfg,
		unit: unit,
		log:  log,
		rl:   rl,
	}, nil
}

// Run starts the interactive command loop.
func (c *console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	pollCtx, stopPoll := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.poll(pollCtx)
	}()
	defer func() {
		stopPoll()
		wg.Wait()
	}()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			fmt.Fprintln(c.out(), "Exiting...")
			cancel()
			return
		}

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Fprintf(c.out(), "Error: %v\n", err)
		}
	}
}

func (c *console) execute(ctx context.Context, cmd string, args []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd {
	case "help", "?":
		c.printHelp()
		return nil

	case "status", "s":
		c.printReading()
		return nil

	case "sample":
		if err := c.s.Sample(ctx); err != nil {
			return err
		}
		c.printReading()
		return nil

	case "units", "u":
		if len(args) != 1 {
			return fmt.Errorf("usage: units C|F")
		}
		unit, err := sample.ParseUnit(args[0])
		if err != nil {
			return err
		}
		c.unit = unit
		return nil

	case "press":
		return c.s.Press(ctx)
	case "start":
		return c.s.StartRoaster(ctx)
	case "preheat":
		return c.report(c.s.Preheat(ctx))
	case "load":
		return c.report(c.s.LoadBeans(ctx))
	case "roast":
		return c.report(c.s.Roast(ctx))
	case "cool":
		return c.report(c.s.Cool(ctx))
	case "off":
		return c.report(c.s.Off(ctx))
	case "mode", "m":
		if len(args) != 1 {
			return fmt.Errorf("usage: mode <%s>", modeNames())
		}
		mode, err := frame.ParseMode(args[0])
		if err != nil {
			return err
		}
		return c.report(c.s.UntilMode(ctx, mode))

	case "fan", "f":
		return c.level(ctx, roaster.Fan, args, c.s.FanUp, c.s.FanDown)
	case "heater", "h":
		return c.level(ctx, roaster.Heater, args, c.s.HeaterUp, c.s.HeaterDown)
	case "drum", "d":
		return c.level(ctx, roaster.Drum, args, c.s.DrumUp, c.s.DrumDown)

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

// level handles "<actuator> N", "<actuator> +" and "<actuator> -".
func (c *console) level(ctx context.Context, a roaster.Actuator, args []string, up, down func(context.Context) error) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <%d-%d>|+|-", a.Name, a.Min, a.Max)
	}

	switch args[0] {
	case "+":
		return up(ctx)
	case "-":
		return down(ctx)
	}

	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid %s level %q", a.Name, args[0])
	}
	return c.report(c.s.SetLevel(ctx, a, n))
}

func (c *console) report(err error) error {
	if err != nil {
		return err
	}
	c.printReading()
	return nil
}

// poll refreshes the cache every PollInterval while no command runs.
func (c *console) poll(ctx context.Context) {
	interval := c.cfg.Control.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.s.Sample(ctx)
			c.mu.Unlock()
			if err != nil && ctx.Err() == nil {
				c.log.Warn("poll failed", "error", err)
			}
		}
	}
}

func (c *console) out() io.Writer {
	return c.rl.Stdout()
}

func (c *console) printReading() {
	fmt.Fprintln(c.out(), sample.FromSnapshot(c.s.Latest(), c.unit))
}

func (c *console) printHelp() {
	fmt.Fprintf(c.out(), `
Bullet R1 Commands:
  Telemetry:
    status, s           - Show the latest reading
    sample              - Poll the roaster once and show the reading
    units C|F           - Switch display units

  Modes:
    press               - Press the mode button once
    start               - Wake the roaster if it is off
    preheat, load, roast, cool, off
                        - Press until the roaster reaches the mode
    mode <name>         - Same, by name (%s)

  Actuators:
    fan <0-12>|+|-      - Set or step the fan (roasting, cooling)
    heater <0-9>|+|-    - Set or step the heater (roasting)
    drum <1-9>|+|-      - Set or step the drum (roasting, cooling)

  Other:
    help                - Show this help
    quit                - Exit
`, modeNames())
}

func modeNames() string {
	names := make([]string, 0, len(frame.Modes))
	for _, m := range frame.Modes {
		names = append(names, m.String())
	}
	return strings.Join(names, ", ")
}
