package manual

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/door"
)

// Name is the source name used in logs, metrics and status.
const Name = "manual"

const help = "commands: o(pen), c(lose), p(review), q(uit)"

// PreviewToggler switches the camera preview on and off.
type PreviewToggler interface {
	Toggle() bool
}

// Config wires a Console.
type Config struct {
	In  io.Reader
	Out io.Writer

	// Preview may be nil when vision is disabled.
	Preview PreviewToggler

	// Quit is called when the operator asks to shut down.
	Quit func()

	Logger adapters.Logger
	Now    func() time.Time
}

// Console is the manual Source.
type Console struct {
	cfg   Config
	lines chan string
	once  sync.Once
}

// New creates a console. Reading starts on the first Poll.
func New(cfg Config) *Console {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Quit == nil {
		cfg.Quit = func() {}
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NoopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Console{cfg: cfg, lines: make(chan string)}
}

// Name implements adapters.Source.
func (c *Console) Name() string { return Name }

// Poll implements adapters.Source. It blocks until the operator enters a
// line. Once input is exhausted it blocks until ctx ends.
func (c *Console) Poll(ctx context.Context) (*door.Command, error) {
	c.once.Do(func() {
		fmt.Fprintln(c.cfg.Out, help)
		go c.read()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return c.interpret(line), nil
	}
}

// read feeds lines to Poll until the input ends. A reader that never
// returns, like a terminal, keeps the goroutine alive until exit.
func (c *Console) read() {
	defer close(c.lines)
	scanner := bufio.NewScanner(c.cfg.In)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		c.cfg.Logger.Warn("console input failed", "error", err)
		return
	}
	c.cfg.Logger.Info("console input closed")
}

func (c *Console) interpret(line string) *door.Command {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return nil
	case "o", "open":
		return c.command(door.KindOpen)
	case "c", "close":
		return c.command(door.KindClose)
	case "p", "preview":
		if c.cfg.Preview == nil {
			fmt.Fprintln(c.cfg.Out, "preview unavailable: vision is disabled")
			return nil
		}
		if c.cfg.Preview.Toggle() {
			fmt.Fprintln(c.cfg.Out, "preview on")
		} else {
			fmt.Fprintln(c.cfg.Out, "preview off")
		}
		return nil
	case "q", "quit":
		fmt.Fprintln(c.cfg.Out, "shutting down")
		c.cfg.Logger.Info("shutdown requested from console")
		c.cfg.Quit()
		return nil
	default:
		fmt.Fprintln(c.cfg.Out, help)
		return nil
	}
}

func (c *Console) command(kind door.Kind) *door.Command {
	return &door.Command{Kind: kind, Source: door.SourceManual, Timestamp: c.cfg.Now()}
}
