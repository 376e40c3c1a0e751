package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/hal/board"
	"go.viam.com/hal/bus"
	"go.viam.com/hal/i2c"
	"go.viam.com/hal/logging"
)

const (
	defaultRecvTimeout  = time.Second
	defaultFeedInterval = 100 * time.Millisecond

	// The 7-bit addresses i2cdetect scans by default; the rest are reserved.
	firstScanAddr = 0x08
	lastScanAddr  = 0x77
)

type runner struct {
	open   BoardOpener
	logger logging.Logger
	conf   *board.Config
}

func (r *runner) before(c *cli.Context) error {
	if c.Bool(flagDebug) {
		r.logger = logging.NewDebugLogger("halctl")
	} else {
		r.logger = logging.NewLogger("halctl")
		r.logger.SetLevel(logging.WARN)
	}
	conf, err := board.Read(c.String(flagConfig))
	if err != nil {
		return err
	}
	r.conf = conf
	return nil
}

// withBoard builds the board, runs fn and closes the board again.
func (r *runner) withBoard(c *cli.Context, fn func(ctx context.Context, b *board.Board) error) (err error) {
	b, err := r.open(c, r.conf, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, b.Close(context.Background()))
	}()
	ctx := c.Context
	if c.IsSet(flagTrace) {
		ctx = logging.WithTrace(ctx, c.String(flagTrace))
	}
	return fn(ctx, b)
}

func printf(c *cli.Context, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(c.App.Writer, format+"\n", a...)
}

func parseUint(flag, s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", flag, s)
	}
	return v, nil
}

func parseBytes(args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("no bytes given")
	}
	out := make([]byte, 0, len(args))
	for _, arg := range args {
		v, err := parseUint("byte", arg, 8)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(v))
	}
	return out, nil
}

func formatBytes(p []byte) string {
	parts := make([]string, len(p))
	for i, b := range p {
		parts[i] = "0x" + hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, " ")
}

func (r *runner) i2cBus(b *board.Board, c *cli.Context) (*i2c.Context, error) {
	name := c.String(flagBus)
	dev, ok := b.I2CByName(name)
	if !ok {
		return nil, errors.Errorf("no i2c bus named %q; have %v", name, b.I2CNames())
	}
	return dev, nil
}

func parseAddr(c *cli.Context) (i2c.Address, error) {
	v, err := parseUint(flagAddr, c.String(flagAddr), 10)
	if err != nil {
		return i2c.Address{}, err
	}
	if v > 0x7f {
		return i2c.TenBit(uint16(v)), nil
	}
	return i2c.SevenBit(uint16(v)), nil
}

func (r *runner) i2cDetectAction(c *cli.Context) error {
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		dev, err := r.i2cBus(b, c)
		if err != nil {
			return err
		}
		var found []string
		for addr := uint16(firstScanAddr); addr <= lastScanAddr; addr++ {
			err := dev.Transfer(ctx, []i2c.Op{{Kind: i2c.Write, Addr: i2c.SevenBit(addr)}})
			switch kind := bus.KindOf(err); {
			case err == nil:
				found = append(found, fmt.Sprintf("0x%02x", addr))
			case kind == bus.Other || kind == bus.NotFound:
			default:
				return err
			}
		}
		if len(found) == 0 {
			printf(c, "no devices found")
			return nil
		}
		printf(c, "%s", strings.Join(found, " "))
		return nil
	})
}

func (r *runner) i2cReadAction(c *cli.Context) error {
	addr, err := parseAddr(c)
	if err != nil {
		return err
	}
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		dev, err := r.i2cBus(b, c)
		if err != nil {
			return err
		}
		buf := make([]byte, c.Int(flagLen))
		if err := dev.Read(ctx, addr, buf); err != nil {
			return err
		}
		printf(c, "%s", formatBytes(buf))
		return nil
	})
}

func (r *runner) i2cWriteAction(c *cli.Context) error {
	addr, err := parseAddr(c)
	if err != nil {
		return err
	}
	data, err := parseBytes(c.Args().Slice())
	if err != nil {
		return err
	}
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		dev, err := r.i2cBus(b, c)
		if err != nil {
			return err
		}
		return dev.Write(ctx, addr, data)
	})
}

func (r *runner) i2cRegReadAction(c *cli.Context) error {
	addr, err := parseAddr(c)
	if err != nil {
		return err
	}
	reg, err := parseUint(flagReg, c.String(flagReg), 8)
	if err != nil {
		return err
	}
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		dev, err := r.i2cBus(b, c)
		if err != nil {
			return err
		}
		buf := make([]byte, c.Int(flagLen))
		if err := dev.WriteReadReg(ctx, addr, []byte{byte(reg)}, buf); err != nil {
			return err
		}
		printf(c, "%s", formatBytes(buf))
		return nil
	})
}

func (r *runner) gpioGetAction(c *cli.Context) error {
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		name := c.String(flagPin)
		p, ok := b.PinByName(name)
		if !ok {
			return errors.Errorf("no pin named %q; have %v", name, b.PinNames())
		}
		high, err := p.Get(ctx)
		if err != nil {
			return err
		}
		if high {
			printf(c, "1")
		} else {
			printf(c, "0")
		}
		return nil
	})
}

func (r *runner) gpioSetAction(c *cli.Context) error {
	var high bool
	switch c.Args().First() {
	case "1", "high":
		high = true
	case "0", "low":
	default:
		return errors.Errorf("expected 0 or 1, got %q", c.Args().First())
	}
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		name := c.String(flagPin)
		p, ok := b.PinByName(name)
		if !ok {
			return errors.Errorf("no pin named %q; have %v", name, b.PinNames())
		}
		return p.Set(ctx, high)
	})
}

func (r *runner) spiXferAction(c *cli.Context) error {
	data, err := parseBytes(c.Args().Slice())
	if err != nil {
		return err
	}
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		name := c.String(flagBus)
		dev, ok := b.SPIByName(name)
		if !ok {
			return errors.Errorf("no spi bus named %q; have %v", name, b.SPINames())
		}
		rx := make([]byte, len(data))
		if err := dev.WriteRead(ctx, data, rx); err != nil {
			return err
		}
		printf(c, "%s", formatBytes(rx))
		return nil
	})
}

func (r *runner) uartSendAction(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if text == "" {
		return errors.New("nothing to send")
	}
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		name := c.String(flagPort)
		port, ok := b.UARTByName(name)
		if !ok {
			return errors.Errorf("no uart named %q; have %v", name, b.UARTNames())
		}
		return port.Write(ctx, []byte(text))
	})
}

func (r *runner) uartRecvAction(c *cli.Context) error {
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		name := c.String(flagPort)
		port, ok := b.UARTByName(name)
		if !ok {
			return errors.Errorf("no uart named %q; have %v", name, b.UARTNames())
		}
		ctx, cancel := context.WithTimeout(ctx, c.Duration(flagTimeout))
		defer cancel()
		buf := make([]byte, c.Int(flagLen))
		n, err := port.Read(ctx, buf)
		if n > 0 {
			printf(c, "%q", buf[:n])
		}
		if errors.Is(err, bus.Timeout) && n > 0 {
			r.logger.Warnw("short read", "want", len(buf), "got", n)
			return nil
		}
		return err
	})
}

func (r *runner) wdtFeedAction(c *cli.Context) error {
	return r.withBoard(c, func(ctx context.Context, b *board.Board) error {
		wdt := b.Watchdog()
		if wdt == nil {
			return errors.New("the board config has no watchdog")
		}
		if !wdt.Started() {
			if err := wdt.Enable(ctx); err != nil {
				return err
			}
		}
		count := c.Int(flagCount)
		for i := 0; i < count; i++ {
			if i > 0 && !goutils.SelectContextOrWait(ctx, c.Duration(flagInterval)) {
				return ctx.Err()
			}
			if err := wdt.Feed(ctx); err != nil {
				return err
			}
		}
		printf(c, "fed %d times", count)
		return wdt.Disable(ctx)
	})
}
